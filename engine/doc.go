// Package engine runs chat turns on top of the memory layer.
//
// A turn has three steps, each reported through ProgressFunc:
//   - memory: Manager.FetchContext for the user message
//   - chat: the Responder generates the reply from the rendered context
//   - update: the exchange is persisted to the ConversationStore and then
//     applied to memory with Manager.ApplyTurnAt under the same timestamp
//
// The engine owns persistence. Manager.ApplyTurn never writes the
// conversation store, so the turn is stored exactly once.
package engine
