package context

// compressionSystemPrompt frames the summarizing model as a memory encoder
// whose output replaces transcript history. The consumer is another model,
// not a human reader, so the instructions optimize for density and fact
// preservation over readability.
const compressionSystemPrompt = "You are compressing part of an autonomous agent's context window. " +
	"Your summary replaces the original messages entirely: whatever you omit is gone. " +
	"Write dense, specific, technical prose for a model consumer, not a human reader."
