// Package tools defines the tool contract used by the turn loop and the
// Registry that resolves, lists and executes tools by name.
// Tools may run in-process or proxy to a remote tool provider.
package tools
