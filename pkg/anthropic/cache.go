package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The four stage prompts are static across a run, so every
// worker after the first hits the warm cache for the system portion.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
