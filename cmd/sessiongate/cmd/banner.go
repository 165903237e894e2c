package cmd

import (
	"fmt"
)

const banner = `
  ____                _              ____       _
 / ___|  ___  ___ ___(_) ___  _ __  / ___| __ _| |_ ___
 \___ \ / _ \/ __/ __| |/ _ \| '_ \| |  _ / _` + "`" + ` | __/ _ \
  ___) |  __/\__ \__ \ | (_) | | | | |_| | (_| | ||  __/
 |____/ \___||___/___/_|\___/|_| |_|\____|\__,_|\__\___|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Session Authentication Gateway - Version %s\x1b[0m\n\n", Version)
}
