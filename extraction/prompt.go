package extraction

import "strings"

const promptTemplate = `You are an AI Real Estate Listing Parser. I will give you a WhatsApp message that contains property listing details.
Your job is to extract the structured data and return a clean JSON object.

The input message may include information like BHK, location, price, rent, furnishing status, contact number and broker name.

Follow these rules strictly:
1. Output ONLY a valid JSON object, no extra text, explanations or notes.
2. The JSON must contain these exact keys:
   - bhk (number or null)
   - location (string or null)
   - price (number or null)
   - rentpermonth (number or null)
   - listing_type (string: either "sale" or "rent")
   - furnished_status (string or null)
   - area (string or null)
   - contact (string or null)
   - broker_name (string or null)
3. Convert prices like:
   - "2.5 cr" or "2.5 crore" -> 25000000
   - "75 lakh" or "0.75 cr" -> 7500000
   - "35,000/month" -> rentpermonth = 35000
   - "₹45,000" -> 45000
   - Ignore currency symbols and commas.
4. If the message is about renting, fill rentpermonth and set price to null.
   If it's about selling, fill price and set rentpermonth to null.
5. If any information is missing, return null for that field.
6. Do not include any fields other than those listed above.

The message was posted in the group: {{chat}}

Here is the WhatsApp message:

{{message}}

Return only the JSON object.
`

// Prompt renders the extraction instructions for one message.
func Prompt(text, chatName string) string {
	if chatName == "" {
		chatName = "unknown"
	}
	return strings.NewReplacer("{{chat}}", chatName, "{{message}}", text).Replace(promptTemplate)
}
