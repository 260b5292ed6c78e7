package creative

import (
	"fmt"
	"strings"

	"adstudio/internal/ad"
)

const creativeDirector = "You are an expert creative director specializing in high-impact visual advertising for e-commerce products."

func overlayInstruction(product ad.ProductInfo) string {
	if text, ok := product.CustomOverlay(); ok {
		return fmt.Sprintf("3. **overlayText**: You MUST use the exact text provided by the user for the ad's visual overlay: \"%s\". Do not modify it or generate a different one.", text)
	}
	return `3. **overlayText**: A very short, impactful phrase (2-5 words) to be stylishly placed directly ON the image. Examples: "Limited Edition," "Shop Now," "Unlock Your Potential," or a key benefit like "Pure Comfort."`
}

func writeProductInfo(b *strings.Builder, product ad.ProductInfo, withLogo bool) {
	b.WriteString("**Product Information:**\n")
	b.WriteString("- **Name:** " + product.Name + "\n")
	b.WriteString("- **Description:** " + product.Description + "\n")
	b.WriteString("- **Target Audience:** " + product.Audience + "\n")
	if withLogo && product.HasLogo() {
		b.WriteString("- **Brand Logo:** A logo has been provided and will be included in the final image. The concepts should be compatible with a logo placement.\n")
	}
	b.WriteString("\n")
}

// BuildConceptsPrompt asks for count distinct concepts in the product's style.
// A non-blank feedback forbids repeating the previous attempt.
func BuildConceptsPrompt(product ad.ProductInfo, feedback string, count int) string {
	style := string(product.Style)

	var b strings.Builder
	b.Grow(2048)

	b.WriteString(creativeDirector + "\n")
	b.WriteString(fmt.Sprintf("Your task is to generate %d distinct visual ad concepts for the provided product. All concepts must strictly adhere to the following creative style: **%s**.\n", count, style))
	b.WriteString("Ensure every 'concept' you generate reflects this style in its description of the scene, lighting, mood, and color palette.\n\n")

	if feedback = strings.TrimSpace(feedback); feedback != "" {
		b.WriteString("**Important User Feedback for Improvement:** The user was not satisfied with the previous generation of ads. You MUST address the following feedback to create better, completely new concepts. DO NOT repeat ideas from the previous attempt. ")
		b.WriteString("Feedback: \"" + feedback + "\"\n\n")
	}

	b.WriteString("For each concept, provide:\n")
	b.WriteString(fmt.Sprintf("1. **concept**: A concise, descriptive prompt for an AI image generator to create the ad visual. It must embody the **%s** style. For example: \"A minimalist studio shot of the product on a pastel-colored pedestal, with soft, diffused lighting to highlight its texture.\"\n", style))
	b.WriteString("2. **headlineSuggestion**: A short, punchy headline that would complement the visual and the chosen style.\n")
	b.WriteString(overlayInstruction(product) + "\n\n")

	writeProductInfo(&b, product, true)

	b.WriteString(fmt.Sprintf("Return the response as a valid JSON array of exactly %d objects. Do not include any markdown formatting like ```json.", count))
	return b.String()
}

// BuildSingleConceptPrompt asks for one replacement concept and passes the
// original as negative context.
func BuildSingleConceptPrompt(product ad.ProductInfo, original ad.Concept, feedback string) string {
	style := string(product.Style)

	var b strings.Builder
	b.Grow(2048)

	b.WriteString(creativeDirector + "\n")
	b.WriteString("Your task is to generate a new, improved visual ad concept for the provided product, based on user feedback.\n")
	b.WriteString("The new concept must be a significant improvement and a completely different idea from the original.\n")
	b.WriteString(fmt.Sprintf("The new concept must strictly adhere to the following creative style: **%s**.\n\n", style))

	b.WriteString("**Original Ad Concept (for context, do not repeat this):**\n")
	b.WriteString("- **Original Visual Idea:** " + original.Concept + "\n")
	b.WriteString("- **Original Headline:** " + original.HeadlineSuggestion + "\n")
	b.WriteString("- **Original Overlay Text:** " + original.OverlayText + "\n\n")

	b.WriteString("**User Feedback for Improvement:**\n")
	b.WriteString("You MUST address the following feedback to create a better, completely new concept. DO NOT repeat ideas from the original.\n")
	b.WriteString("Feedback: \"" + strings.TrimSpace(feedback) + "\"\n\n")

	b.WriteString("For the new concept, provide:\n")
	b.WriteString(fmt.Sprintf("1. **concept**: A concise, descriptive prompt for an AI image generator to create the ad visual. It must embody the **%s** style and be different from the original.\n", style))
	b.WriteString("2. **headlineSuggestion**: A short, punchy headline that would complement the new visual and the chosen style.\n")
	b.WriteString(overlayInstruction(product) + "\n\n")

	writeProductInfo(&b, product, true)

	b.WriteString("Return the response as a single, valid JSON object. Do not include any markdown formatting like ```json.")
	return b.String()
}

// BuildVisualPrompt is the image instruction for one concept.
func BuildVisualPrompt(product ad.ProductInfo, concept, overlayText string) string {
	var b strings.Builder
	b.Grow(2048)

	b.WriteString(fmt.Sprintf("You are an expert AI art director. Your task is to generate a photorealistic, high-quality advertisement image for the product \"%s\". The final image MUST be a square (1:1 aspect ratio).\n\n", product.Name))

	b.WriteString("**Core Instructions:**\n")
	b.WriteString("1. **Product Visibility:** The primary reference image provided shows the product. You MUST feature this product as the central focus of the ad. The **entire product** from the reference image must be **fully visible** and not cropped or cut off in any way. Ensure it is well-lit and clearly presented within the square frame.\n")
	b.WriteString(fmt.Sprintf("2. **Creative Direction:** The overall visual style must strictly adhere to this creative direction: \"%s\".\n", concept))
	b.WriteString(fmt.Sprintf("3. **Text Integration:** You must integrate the following text onto the image: \"%s\".\n", overlayText))
	writeBullets(&b, "   ", []string{
		"The text must be **fully legible** and placed so that no part of it is cut off by the image borders.",
		"Position the text thoughtfully, ensuring it doesn't obscure critical parts of the product. Place it in an area with good visual contrast.",
		"The font, color, and style of the text must complement the overall ad aesthetic.",
	})
	if product.HasLogo() {
		b.WriteString("4. **Logo Integration:** A brand logo is provided as a separate image. You MUST subtly incorporate this logo into the final generated ad image. Place it tastefully, for example in a corner, ensuring it's legible but doesn't overpower the main product.\n")
	}
	b.WriteString("\n")

	b.WriteString("**Final Output Rules:**\n")
	b.WriteString("- The final image must be a complete, well-composed advertisement with a 1:1 aspect ratio.\n")
	b.WriteString("- Do not include any other text, watermarks, or logos, other than the specified overlay text and the provided brand logo (if applicable).")
	return b.String()
}

func writeBullets(b *strings.Builder, indent string, lines []string) {
	for _, line := range lines {
		b.WriteString(indent + "- " + line + "\n")
	}
}
