// Package bridge connects a Claude model to one MCP (Model Context Protocol)
// tool server and runs the tool-use loop between them.
//
// A [Client] owns one tool-server connection and one conversation. Each
// [Client.Query] appends the user's text to the history, lets the model call
// the server's tools as many times as it needs, and returns the formatted
// transcript of the exchange.
//
// # Quick Start
//
//	c, err := bridge.Connect(ctx, "claude_desktop_config.json")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	res := c.Query(ctx, "What is the weather in Paris?")
//	fmt.Println(res.Text)
//
// The target is either a server script (.py or .js, run with python or
// node) or a config file (.json, .yaml, .yml) listing servers under
// "mcpServers". [ConnectTransport] accepts any [mcp.Transport], including
// the in-process [mcp.LocalServer].
//
// # Sub-packages
//
//   - [mcp] provides transports, the retrying tool bridge and LocalServer.
//   - [conversation] provides the history data model.
//   - [session] provides document stores for Save and Load.
//   - [permission] provides the tool allow/deny policy.
//   - [server] provides the WebSocket façade.
package bridge
