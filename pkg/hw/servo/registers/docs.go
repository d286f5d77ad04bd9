package registers

import (
	"fmt"
	"strings"
)

// DocString describes the control table of DefaultLayout
func DocString() string {
	var builder strings.Builder

	builder.WriteString("Control table (multi-byte registers are little endian):\n\n")
	fmt.Fprintf(&builder, "  %-7v  %-18v  %-5v  %-6v  %v\n", "address", "name", "width", "access", "default")

	for _, descriptor := range DefaultLayout() {
		fmt.Fprintf(&builder, "  %-7v  %-18v  %-5v  %-6v  %v\n",
			descriptor.Address, descriptor.Name, descriptor.Width, descriptor.Access, descriptor.Default)
	}

	return builder.String()
}
