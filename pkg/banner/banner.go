package banner

import (
	"fmt"
	"strings"
)

const banner = `
██╗      ██████╗  ██████╗ █████╗ ██╗     ███████╗███████╗██████╗ ██╗   ██╗
██║     ██╔═══██╗██╔════╝██╔══██╗██║     ██╔════╝██╔════╝██╔══██╗██║   ██║
██║     ██║   ██║██║     ███████║██║     ███████╗█████╗  ██████╔╝██║   ██║
██║     ██║   ██║██║     ██╔══██║██║     ╚════██║██╔══╝  ██╔══██╗╚██╗ ██╔╝
███████╗╚██████╔╝╚██████╗██║  ██║███████╗███████║███████╗██║  ██║ ╚████╔╝
╚══════╝ ╚═════╝  ╚═════╝╚═╝  ╚═╝╚══════╝╚══════╝╚══════╝╚═╝  ╚═╝  ╚═══╝
`

// Print writes the startup banner with the bound listen addresses, the
// config file in use and the build version.
func Print(addrs []string, cfgPath, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", strings.Join(addrs, ", "))
	fmt.Printf("Config:   %s\n", cfgPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Println("===============================================================")
}
