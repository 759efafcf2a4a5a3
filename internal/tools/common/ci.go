package common

import (
	"encoding/json"
	"fmt"
	"os"
)

type ciResult struct {
	Check   string   `json:"check"`
	OK      bool     `json:"ok"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PrintCIResult emits one machine-readable result line for CI pipelines.
func PrintCIResult(ok bool, check string, details []string, err error) {
	result := ciResult{Check: check, OK: ok, Details: details}
	if err != nil {
		result.Error = err.Error()
	}
	payload, merr := json.Marshal(result)
	if merr != nil {
		fmt.Fprintf(os.Stderr, "marshal ci result: %v\n", merr)
		return
	}
	fmt.Println(string(payload))
}
