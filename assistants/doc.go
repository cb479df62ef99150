// Package assistants implements the tool-augmented completion loop.
//
// A run appends the user prompt to a Conversation, asks the model for the
// next step, dispatches any tool calls to a ToolRegistry and appends their
// results in call order, until the model answers or the turn budget is spent.
// Tool failures are fed back to the model as results. Model errors, model
// timeouts and cancellation fail the run.
package assistants
