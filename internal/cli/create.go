package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/zakirhyder/huddle/internal/config"
	"github.com/zakirhyder/huddle/internal/ui"
)

var (
	createUser     string
	createGuests   int
	createDomain   string
	createInsecure bool
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and print its id",
	Long: `Create a screen-share room on the coordinator. The room id is what
guests pass to "huddle join". You become the host when you join it.

Examples:
  huddle create --user alice
  huddle create --user alice --guests 2
  huddle create --user alice --domain huddle.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if createUser == "" {
			return fmt.Errorf("--user is required")
		}
		return createRoom()
	},
}

type createRoomRequest struct {
	HostID    string `json:"hostId"`
	MaxGuests int    `json:"maxGuests"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

func createRoom() error {
	cfg, err := config.Load(config.Options{
		Domain:   createDomain,
		Insecure: createInsecure,
	})
	if err != nil {
		return NewError("load config", err)
	}

	stopSpinner := ui.RunConnectionSpinner("Creating room...")
	defer stopSpinner()

	body, _ := json.Marshal(createRoomRequest{HostID: createUser, MaxGuests: createGuests})
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(cfg.RoomsURL(), "application/json", bytes.NewReader(body))
	if err != nil {
		return NewError("create room", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WrapError("create room", ErrSignalingError, resp.Status)
	}

	var created createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return NewError("create room", err)
	}
	stopSpinner()

	hint := fmt.Sprintf("huddle join --room %s --user <name>", created.RoomID)
	fmt.Println(ui.NewRoomInfo(created.RoomID, hint).View())
	return nil
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createUser, "user", "u", "", "Your user id (you will be the host)")
	createCmd.Flags().IntVarP(&createGuests, "guests", "g", 3, "Maximum number of guests (1-3)")
	createCmd.Flags().StringVarP(&createDomain, "domain", "d", "", "Custom coordinator domain")
	createCmd.Flags().BoolVar(&createInsecure, "insecure", false, "Use ws:// and http:// (local development)")
}
