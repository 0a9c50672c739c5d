package natsmq

import "fmt"

// Response is the outcome of one publish, plus the reply message when
// the stage asked for one.
type Response struct {
	Published bool
	Received  bool
	TimedOut  bool
	Subject   string
	Data      []byte
}

func (r *Response) Describe() string {
	switch {
	case r.Received:
		out := fmt.Sprintf("MSG %s", r.Subject)
		if len(r.Data) > 0 {
			out += "\n\n" + string(r.Data)
		}
		return out
	case r.TimedOut:
		return "no reply received before the timeout"
	default:
		return "message published, no reply requested"
	}
}
