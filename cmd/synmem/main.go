// Command synmem stores and searches memories extracted by a browser agent.
//
//	synmem store "page text" --source https://example.com/page
//	synmem search "checkout flow" --limit 5
//	synmem start --detach
//
// Configuration is read from $HOME/.synmem/synmem.json; every key can be
// overridden with a SYNMEM_ environment variable (SYNMEM_EMBEDDING_API_KEY
// sets embedding.api_key).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/harun/synmem/internal/cli"
	"github.com/harun/synmem/pkg/query"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for caller errors, 3 for missing memories, 1 otherwise.
func exitCode(err error) int {
	var qe *query.Error
	if !errors.As(err, &qe) {
		return 1
	}
	switch qe.Kind {
	case query.KindNotFound:
		return 3
	case query.KindEmptyInput, query.KindInputTooLong, query.KindInvalidQuery, query.KindInvalidMemory:
		return 2
	default:
		return 1
	}
}
