package analyzer

import "github.com/zombar/visumax/internal/models"

const responseFormat = `Respond with a single JSON object and nothing else, using exactly this shape:
{
  "measurements": {
    "eyes":    {"size": 0-10, "shape": 0-10, "balance": 0-10, "analysis": ["..."], "improvement": ["..."]},
    "nose":    {"height": 0-10, "bridge": 0-10, "shape": 0-10, "analysis": ["..."], "improvement": ["..."]},
    "skin":    {"texture": 0-10, "tone": 0-10, "clarity": 0-10, "analysis": ["..."], "improvement": ["..."]},
    "jawline": {"definition": 0-10, "balance": 0-10, "angle": 0-10, "analysis": ["..."], "improvement": ["..."]},
    "hair":    {"quality": 0-10, "volume": 0-10, "style": 0-10, "analysis": ["..."], "improvement": ["..."]}
  }
}

Rules:
- Every numeric value is a number between 0 and 10
- Give 1 to 3 short analysis sentences and 1 to 3 improvement suggestions per category
- Keep the tone positive and constructive
- Do NOT add commentary outside the JSON object`

const malePrompt = `You are an expert in facial aesthetics and men's grooming.
Analyze the face in the attached photo. Assess eye size, shape and balance; nose height, bridge and shape;
skin texture, tone and clarity; jawline definition, balance and angle; and hair quality, volume and style.
Suggest practical grooming, skincare and hairstyle improvements suited to a man.

` + responseFormat

const femalePrompt = `You are an expert in facial aesthetics and beauty consulting.
Diagnose the face in the attached photo. Assess eye size, shape and balance; nose height, bridge and shape;
skin texture, tone and clarity; jawline definition, balance and angle; and hair quality, volume and style.
Suggest practical makeup, skincare and hairstyle improvements suited to a woman.

` + responseFormat

// Prompt returns the analysis prompt for gender. Unknown values get the male
// variant.
func Prompt(gender models.Gender) string {
	if gender == models.GenderFemale {
		return femalePrompt
	}
	return malePrompt
}
