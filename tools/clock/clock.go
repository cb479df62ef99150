// Package clock provides the current time tool.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/tools"
)

const ToolName = "get_current_time"

// Request is the input of the tool.
type Request struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone name (UTC when empty),example=Europe/Paris"`
}

// Time is the output of the tool.
type Time struct {
	Zone string    `json:"zone"`
	Now  time.Time `json:"now"`
}

func (t *Time) GetContent() string {
	return fmt.Sprintf("Current %s time: %s", t.Zone, t.Now.Format(time.RFC3339))
}

// NowFunc returns the current time.
type NowFunc func() time.Time

// New returns the tool reading time from now, or time.Now when nil.
func New(now NowFunc) tools.Tool[Request, Time] {
	if now == nil {
		now = time.Now
	}
	return tools.MustFunc(ToolName, "Get the current time and date",
		func(_ context.Context, req *Request) (*Time, error) {
			zone := req.Timezone
			if zone == "" {
				zone = "UTC"
			}
			loc, err := time.LoadLocation(zone)
			if err != nil {
				return nil, chatmodel.NewToolError("unknown_timezone", fmt.Sprintf("Unknown time zone: %s", zone))
			}
			return &Time{Zone: zone, Now: now().In(loc)}, nil
		})
}
