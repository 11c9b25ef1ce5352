package pricing

// defaultCatalogue is the compiled-in fallback used when the control store
// has no pricing rows or cannot be reached. Rates are USD per million
// tokens.
var defaultCatalogue = []Rate{
	// OpenAI
	{Model: "gpt-4o", Provider: "openai", InputPer1M: 2.5, OutputPer1M: 10, CachedInputPer1M: 1.25,
		Aliases: []string{"gpt-4o-2024-08-06", "gpt-4o-2024-11-20", "chatgpt-4o-latest"}},
	{Model: "gpt-4o-mini", Provider: "openai", InputPer1M: 0.15, OutputPer1M: 0.6, CachedInputPer1M: 0.075,
		Aliases: []string{"gpt-4o-mini-2024-07-18"}},
	{Model: "gpt-4.1", Provider: "openai", InputPer1M: 2, OutputPer1M: 8, CachedInputPer1M: 0.5,
		Aliases: []string{"gpt-4.1-2025-04-14"}},
	{Model: "gpt-4.1-mini", Provider: "openai", InputPer1M: 0.4, OutputPer1M: 1.6, CachedInputPer1M: 0.1},
	{Model: "gpt-4.1-nano", Provider: "openai", InputPer1M: 0.1, OutputPer1M: 0.4, CachedInputPer1M: 0.025},
	{Model: "o3", Provider: "openai", InputPer1M: 2, OutputPer1M: 8, CachedInputPer1M: 0.5},
	{Model: "o3-mini", Provider: "openai", InputPer1M: 1.1, OutputPer1M: 4.4, CachedInputPer1M: 0.55},
	{Model: "o4-mini", Provider: "openai", InputPer1M: 1.1, OutputPer1M: 4.4, CachedInputPer1M: 0.275},

	// Anthropic
	{Model: "claude-opus-4", Provider: "anthropic", InputPer1M: 15, OutputPer1M: 75, CachedInputPer1M: 1.5,
		Aliases: []string{"claude-opus-4-20250514", "claude-opus-4-0"}},
	{Model: "claude-sonnet-4", Provider: "anthropic", InputPer1M: 3, OutputPer1M: 15, CachedInputPer1M: 0.3,
		Aliases: []string{"claude-sonnet-4-20250514", "claude-sonnet-4-0"}},
	{Model: "claude-3-7-sonnet", Provider: "anthropic", InputPer1M: 3, OutputPer1M: 15, CachedInputPer1M: 0.3,
		Aliases: []string{"claude-3-7-sonnet-20250219", "claude-3-7-sonnet-latest"}},
	{Model: "claude-3-5-sonnet", Provider: "anthropic", InputPer1M: 3, OutputPer1M: 15, CachedInputPer1M: 0.3,
		Aliases: []string{"claude-3-5-sonnet-20241022", "claude-3-5-sonnet-20240620", "claude-3-5-sonnet-latest"}},
	{Model: "claude-3-5-haiku", Provider: "anthropic", InputPer1M: 0.8, OutputPer1M: 4, CachedInputPer1M: 0.08,
		Aliases: []string{"claude-3-5-haiku-20241022", "claude-3-5-haiku-latest"}},

	// Google
	{Model: "gemini-2.5-pro", Provider: "google", InputPer1M: 1.25, OutputPer1M: 10, CachedInputPer1M: 0.31,
		Aliases: []string{"gemini-2.5-pro-preview-05-06"}},
	{Model: "gemini-2.5-flash", Provider: "google", InputPer1M: 0.3, OutputPer1M: 2.5, CachedInputPer1M: 0.075,
		Aliases: []string{"gemini-2.5-flash-preview-04-17"}},
	{Model: "gemini-2.0-flash", Provider: "google", InputPer1M: 0.1, OutputPer1M: 0.4, CachedInputPer1M: 0.025,
		Aliases: []string{"gemini-2.0-flash-001"}},

	// Mistral
	{Model: "mistral-large", Provider: "mistral", InputPer1M: 2, OutputPer1M: 6, CachedInputPer1M: 0,
		Aliases: []string{"mistral-large-latest", "mistral-large-2411"}},
	{Model: "mistral-small", Provider: "mistral", InputPer1M: 0.1, OutputPer1M: 0.3, CachedInputPer1M: 0,
		Aliases: []string{"mistral-small-latest"}},
}
