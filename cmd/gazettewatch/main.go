// Command gazettewatch scans the Diário Oficial da União for a watch-list of
// administrative file numbers and serves the execution history.
package main

import (
	"os"
	_ "time/tzdata"
)

func main() {
	os.Exit(Execute(os.Args[1:]))
}
