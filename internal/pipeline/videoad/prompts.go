package videoad

import (
	"fmt"
	"strings"
)

var interactionFraming = map[string]string{
	"wearing": "The presenter is wearing the product naturally, as part of their outfit.",
	"holding": "The presenter is holding the product up toward the camera while talking.",
	"using":   "The presenter is actively using the product mid-demonstration.",
}

var cameraFraming = map[string]string{
	"full_body": "full body shot, presenter visible head to toe",
	"waist_up":  "waist-up framing, presenter from the waist upward",
	"close_up":  "close-up framing on the presenter's face and the product",
}

func scriptPrompt(req *Request, brandContext string) string {
	var b strings.Builder
	b.WriteString("You are a direct-response copywriter for short-form video ads.\n")
	b.WriteString("Write 3 distinct 30-second UGC-style ad scripts for the product below.\n")
	b.WriteString("Each script must be broken into chunks of 8-10 seconds of spoken narration.\n\n")
	fmt.Fprintf(&b, "Product brief: %s\n", req.ProductBrief)
	if req.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", req.TargetAudience)
	}
	if brandContext != "" {
		fmt.Fprintf(&b, "Brand voice reference (raw page text):\n%s\n", brandContext)
	}
	b.WriteString(`
Respond with JSON only, matching exactly:
{
  "scripts": [
    {
      "script_id": "script_1",
      "hook_angle": "one-line description of the hook",
      "full_text": "the complete narration",
      "chunks": [
        {"chunk_id": 1, "text": "first 8-10 seconds of narration", "duration_estimate": 9}
      ]
    }
  ]
}
Each script should open with a different hook angle. Keep the language
conversational, first person, no hashtags, no emoji.`)
	return b.String()
}

func productDescriptionPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString("Describe the physical product in the photos below in 2-3 sentences, ")
	b.WriteString("focusing on shape, color, material, and any visible branding. ")
	b.WriteString("The description will seed an image generator, so be concrete and visual.\n\n")
	fmt.Fprintf(&b, "Product brief: %s\n", req.ProductBrief)
	b.WriteString("Photos:\n")
	for _, url := range req.ProductPhotos {
		fmt.Fprintf(&b, "- %s\n", url)
	}
	return b.String()
}

func characterImagePrompt(req *Request, productDesc string) string {
	return fmt.Sprintf(
		"Photorealistic UGC-style photo of a friendly presenter in a bright, natural setting. %s "+
			"The product: %s. %s. Shot on a phone camera, natural lighting, no text overlays.",
		interactionFraming[req.ProductInteraction],
		productDesc,
		cameraFraming[req.CameraAngle],
	)
}
