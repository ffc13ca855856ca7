package vision

import "strings"

// BuildTranscribePrompts returns the system and user messages for the
// first-pass transcription of a page image.
func BuildTranscribePrompts() (system, user string) {
	system = strings.Join([]string{
		"You are an expert OCR assistant. Extract all text from the provided image",
		"and format it as clean, well-structured markdown. Preserve the document structure, headings,",
		"lists, tables, and formatting as much as possible. Output only the markdown content without",
		"any additional commentary or explanation.",
	}, " ")
	user = "Extract all text from this image and format as markdown:"
	return system, user
}

// BuildRefinePrompts returns the system and user messages for the correction
// pass. The user message embeds the first-pass draft; the same page image is
// attached again so the model can verify against it. The instructions ask for
// correction of transcription errors, not paraphrasing.
func BuildRefinePrompts(draft string) (system, user string) {
	system = strings.Join([]string{
		"You are an expert text refinement specialist. Your task is to improve OCR-extracted text by:",
		"",
		"1. Correcting OCR misrecognitions and errors",
		"2. Fixing formatting issues, spacing, and line breaks",
		"3. Improving markdown structure and consistency",
		"4. Preserving the original document structure and meaning",
		"5. Using the provided image as reference to verify accuracy",
		"",
		"Output only the refined markdown content without any commentary.",
	}, "\n")
	user = "Here is raw OCR text that may contain errors. Please refine and correct it using the image as reference:\n\n" + draft
	return system, user
}
