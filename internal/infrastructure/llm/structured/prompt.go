package structured

import (
	"fmt"
	"strings"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

// SystemPrompt instructs the model to answer with one JSON object shaped like StructuredExtraction.
func SystemPrompt() string {
	names := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		names = append(names, string(c))
	}

	return fmt.Sprintf(`You catalogue household items for an insurance inventory.
Look at the photo and read every label, nameplate, sticker and engraving you can see.
Return only a JSON object with exactly these keys:
{
  "title": string,            // short item name, e.g. "65-inch OLED TV"
  "description": string,      // one sentence describing the item
  "brand": string,
  "model": string,
  "serial_number": string,
  "category": string,         // one of: %s
  "estimated_value": number,  // replacement value in USD, 0 if unknown
  "confidence": number,       // 0-100, how sure you are about the fields above
  "extracted_text": string    // all text you can read on the image, verbatim
}
Use an empty string for anything you cannot read. Do not add any text outside the JSON object.`,
		strings.Join(names, ", "))
}

const UserPrompt = "Extract the item details from this photo. Respond with the JSON object only."
