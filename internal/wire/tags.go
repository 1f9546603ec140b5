package wire

// Message-type tags, sent as the ASCII frame immediately following the
// sender identity frame. These mirror the tag constants of the original
// broker (fncs::HELLO, fncs::ACK, ...), collected here instead of scattered
// string literals through the dispatcher.
const (
	TagHello       = "HELLO"
	TagAck         = "ACK"
	TagTimeRequest = "TIME_REQUEST"
	TagTimeDelta   = "TIME_DELTA"
	TagPublish     = "PUBLISH"
	TagBye         = "BYE"
	TagDie         = "DIE"
)
