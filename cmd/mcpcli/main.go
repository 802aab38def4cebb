// Command mcpcli is an interactive client for MCP servers that speak JSON-RPC
// over stdio.
package main

func main() {
	Execute()
}
