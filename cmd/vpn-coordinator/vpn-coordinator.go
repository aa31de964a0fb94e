// /* cmd/vpn-coordinator/vpn-coordinator.go
/*
vpn-coordinator daemon and control cli
*/
package main

import "github.com/skycoin/vpn-coordinator/cmd/vpn-coordinator/commands"

func main() {
	commands.Execute()
}
