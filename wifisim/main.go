// Command wifisim runs Wi-Fi network scenarios described in YAML files.
package main

import "github.com/sarchlab/wifisim/wifisim/cmd"

func main() {
	cmd.Execute()
}
