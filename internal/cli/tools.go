package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skosovsky/gemini"
)

// Clock is the time source handed to the built-in tools through the ToolContext.
type Clock func() time.Time

type timeArgs struct {
	Timezone *string `json:"timezone,omitempty" description:"IANA time zone, e.g. Europe/Paris. Defaults to UTC."`
}

type timeResult struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

type wordCountArgs struct {
	Text string `json:"text" description:"Text to count words in"`
}

type wordCountResult struct {
	Words int `json:"words"`
}

// builtinTools are the tools the chat command offers to the model.
func builtinTools() ([]gemini.Tool, error) {
	now, err := gemini.NewTool("current_time", "Returns the current date and time",
		func(_ context.Context, tc *gemini.ToolContext, in timeArgs) (timeResult, error) {
			clock, ok := gemini.Resource[Clock](tc)
			if !ok {
				clock = time.Now
			}
			zone := "UTC"
			if in.Timezone != nil && *in.Timezone != "" {
				zone = *in.Timezone
			}
			loc, err := time.LoadLocation(zone)
			if err != nil {
				return timeResult{}, fmt.Errorf("unknown time zone %q", zone)
			}
			return timeResult{Time: clock().In(loc).Format(time.RFC3339), Timezone: zone}, nil
		})
	if err != nil {
		return nil, err
	}
	words, err := gemini.NewTool("word_count", "Counts the words in a text",
		func(_ context.Context, _ *gemini.ToolContext, in wordCountArgs) (wordCountResult, error) {
			return wordCountResult{Words: len(strings.Fields(in.Text))}, nil
		})
	if err != nil {
		return nil, err
	}
	return []gemini.Tool{now, words}, nil
}

// newToolRegistry builds the registry used by the chat and tools commands.
func newToolRegistry(clock Clock, opts ...gemini.RegistryOption) (*gemini.Registry, error) {
	tools, err := builtinTools()
	if err != nil {
		return nil, err
	}
	reg := gemini.NewRegistry(append([]gemini.RegistryOption{gemini.WithDefaultTimeout(10 * time.Second)}, opts...)...)
	if clock != nil {
		gemini.SetResource(reg.ToolContext(), clock)
	}
	reg.Register(tools...)
	return reg, nil
}
