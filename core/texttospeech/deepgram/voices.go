package deepgram

import "slices"

type deepgramVoice string

const (
	VoiceAsteria deepgramVoice = "aura-2-asteria-en"
	VoiceThalia  deepgramVoice = "aura-2-thalia-en"
	VoiceLuna    deepgramVoice = "aura-2-luna-en"
	VoiceHera    deepgramVoice = "aura-2-hera-en"
	VoiceOrion   deepgramVoice = "aura-2-orion-en"
	VoiceArcas   deepgramVoice = "aura-2-arcas-en"
	VoiceHelios  deepgramVoice = "aura-2-helios-en"

	defaultVoice = VoiceThalia
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceAsteria,
		VoiceThalia,
		VoiceLuna,
		VoiceHera,
		VoiceOrion,
		VoiceArcas,
		VoiceHelios,
	}
}

func IsAvailableVoice(voice deepgramVoice) bool {
	return slices.Contains(GetAvailableVoices(), voice)
}
