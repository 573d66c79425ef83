package transform

// SplitChunks breaks text into chunks of at most maxChars characters,
// cutting only at sentence boundaries. A single sentence longer than
// maxChars is kept intact as its own chunk. Concatenating the returned
// chunks reproduces the input exactly.
func SplitChunks(text string, maxChars int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	current := ""

	for _, sentence := range splitSentences(text) {
		if current != "" && len(current)+len(sentence) > maxChars {
			chunks = append(chunks, current)
			current = ""
		}
		current += sentence
	}
	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// splitSentences cuts after each period, keeping the period and any
// trailing whitespace with the sentence it ends.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text); i++ {
		if text[i] != '.' {
			continue
		}
		end := i + 1
		for end < len(text) && (text[end] == ' ' || text[end] == '\n' || text[end] == '\t' || text[end] == '\r') {
			end++
		}
		sentences = append(sentences, text[start:end])
		start = end
		i = end - 1
	}

	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	return sentences
}
