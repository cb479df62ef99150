// Package llms defines the completion model adapter used by the turn loop.
//
// A Model turns a chatmodel.Conversation and the available tool definitions
// into a Completion: either a final answer, or a set of tool calls. Each
// subpackage adapts one provider SDK to this contract.
package llms
