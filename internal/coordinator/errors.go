package coordinator

// Ack error codes. Capacity/state codes are fatal to the join attempt;
// everything else is returned on the request/response exchange and leaves the
// connection open.
const (
	CodeRoomNotFound   = "ROOM_NOT_FOUND"
	CodeRoomAtCapacity = "ROOM_AT_CAPACITY"
	CodeRoomEnded      = "ROOM_ENDED"
	CodeRoomSuspended  = "ROOM_SUSPENDED"

	CodeNotHost          = "NOT_HOST"
	CodeNotAllowed       = "NOT_ALLOWED"
	CodeCannotTargetHost = "CANNOT_TARGET_HOST"

	CodeTargetNotFound = "TARGET_NOT_FOUND"
	CodeTargetRequired = "TARGET_REQUIRED"

	CodeEmptyStroke = "EMPTY_STROKE"
	CodeNotInRoom   = "NOT_IN_ROOM"
	CodeBadRequest  = "BAD_REQUEST"
)
