// Package internal cmd/vpn-coordinator/internal/internal.go
package internal

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"
	"github.com/tidwall/pretty"

	"github.com/skycoin/skywire-utilities/pkg/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var log = logging.MustGetLogger("vpn-coordinator-cli")

// JSONString is the name of the json flag
var JSONString = "json"

// Catch handles errors for vpn-coordinator commands packages
func Catch(err error, msgs ...string) {
	if err != nil {
		if len(msgs) > 0 {
			log.Fatalln(append(msgs, err.Error()))
		} else {
			log.Fatalln(err)
		}
	}
}

// CLIOutput is the --json envelope.
type CLIOutput struct {
	Output interface{} `json:"output,omitempty"`
	Err    string      `json:"error,omitempty"`
}

// PrintOutput prints output, or the colored JSON envelope with --json.
func PrintOutput(outputJSON, output interface{}, cmdFlags *pflag.FlagSet) {
	isJSON, _ := cmdFlags.GetBool(JSONString) //nolint:errcheck
	if isJSON {
		b, err := json.Marshal(CLIOutput{Output: outputJSON})
		if err != nil {
			fmt.Println(err)
		}
		fmt.Printf("%s", pretty.Color(pretty.Pretty(b), nil))
		return
	}
	fmt.Println(output)
}

// PrintFatalError prints err and exits.
func PrintFatalError(err error, cmdFlags *pflag.FlagSet) {
	isJSON, _ := cmdFlags.GetBool(JSONString) //nolint:errcheck
	if isJSON {
		b, mErr := json.Marshal(CLIOutput{Err: err.Error()})
		if mErr != nil {
			fmt.Println(mErr)
		}
		fmt.Printf("%s", pretty.Pretty(b))
		os.Exit(1)
	}
	log.Fatal(err)
}

// PrettyJSON returns raw indented and colored.
func PrettyJSON(raw []byte) string {
	return string(pretty.Color(pretty.Pretty(raw), nil))
}
