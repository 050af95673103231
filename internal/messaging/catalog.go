package messaging

import (
	"fmt"

	"golang.org/x/text/language"
)

type MessageID string

const (
	MsgRegister        MessageID = "register"
	MsgNoCredits       MessageID = "no_credits"
	MsgHelp            MessageID = "help"
	MsgCredits         MessageID = "credits"
	MsgProcessingText  MessageID = "processing_text"
	MsgProcessingAudio MessageID = "processing_audio"
	MsgTranscribed     MessageID = "transcribed"
	MsgSuccess         MessageID = "success"
	MsgFailed          MessageID = "failed"
	MsgFailedAudio     MessageID = "failed_audio"
	MsgLowCredits      MessageID = "low_credits"
	MsgVerification    MessageID = "verification"
	MsgTrialExpired    MessageID = "trial_expired"
)

var supported = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
	language.Spanish,
}

var texts = map[language.Tag]map[MessageID]string{
	language.BrazilianPortuguese: {
		MsgRegister:        "Olá! Para usar o NexusArt, primeiro registre-se em nexusart.com.br",
		MsgNoCredits:       "❌ Seus créditos acabaram. Atualize seu plano em nexusart.com.br/plans",
		MsgHelp:            "🤖 *NexusArt - Menu de Ajuda*\n\n📱 *Como usar:*\n1. Digite ou grave um áudio com sua promoção\n2. Receba a arte pronta em segundos\n3. Compartilhe com seus clientes\n\n⚡ *Comandos rápidos:*\n• *menu* - Ver este menu\n• *creditos* - Ver créditos restantes\n\n💡 *Dica:* Grave áudios para ser mais rápido!",
		MsgCredits:         "💰 *Seus Créditos*\n\n• Usados: %d\n• Limite: %d\n• Restantes: %d\n\nPlano: %s",
		MsgProcessingText:  "✍️ Processando sua mensagem... Arte chegando em instantes!",
		MsgProcessingAudio: "🎤 Processando seu áudio... Em segundos você receberá a arte!",
		MsgTranscribed:     "✅ Áudio transcrito com sucesso!\n\n📝 *Transcrição:*\n%s\n\n⚡ Gerando arte...",
		MsgSuccess:         "✅ Sua arte está pronta!\n\n📝 *Sua promoção:*\n%s\n\n🖼️ *Arte gerada:*\n%s\n\n💡 Créditos restantes: %d",
		MsgFailed:          "❌ Ocorreu um erro ao gerar sua arte. Tente novamente com um texto mais claro.",
		MsgFailedAudio:     "❌ Ocorreu um erro ao processar seu áudio. Tente novamente ou envie um texto.",
		MsgLowCredits:      "⚠️ Restam apenas %d créditos no seu plano. Renove ou faça upgrade em nexusart.com.br/plans",
		MsgVerification:    "🔐 Seu código de verificação NexusArt é %s. Ele expira em 15 minutos.",
		MsgTrialExpired:    "⏰ Seu período de teste expirou! Você realizou %d gerações. Escolha um plano em nexusart.com.br/plans",
	},
	language.English: {
		MsgRegister:        "Hi! To use NexusArt, please sign up first at nexusart.com.br",
		MsgNoCredits:       "❌ You are out of credits. Upgrade your plan at nexusart.com.br/plans",
		MsgHelp:            "🤖 *NexusArt - Help*\n\n📱 *How to use:*\n1. Type or record your promotion\n2. Get the artwork in seconds\n3. Share it with your customers\n\n⚡ *Commands:*\n• *menu* - Show this menu\n• *credits* - Show remaining credits",
		MsgCredits:         "💰 *Your Credits*\n\n• Used: %d\n• Limit: %d\n• Remaining: %d\n\nPlan: %s",
		MsgProcessingText:  "✍️ Processing your message... Artwork on its way!",
		MsgProcessingAudio: "🎤 Processing your audio... Artwork in a few seconds!",
		MsgTranscribed:     "✅ Audio transcribed!\n\n📝 *Transcript:*\n%s\n\n⚡ Generating artwork...",
		MsgSuccess:         "✅ Your artwork is ready!\n\n📝 *Your promotion:*\n%s\n\n🖼️ *Artwork:*\n%s\n\n💡 Credits left: %d",
		MsgFailed:          "❌ We could not generate your artwork. Please try again with a clearer text.",
		MsgFailedAudio:     "❌ We could not process your audio. Try again or send a text message.",
		MsgLowCredits:      "⚠️ Only %d credits left on your plan. Renew or upgrade at nexusart.com.br/plans",
		MsgVerification:    "🔐 Your NexusArt verification code is %s. It expires in 15 minutes.",
		MsgTrialExpired:    "⏰ Your trial has ended! You created %d artworks. Pick a plan at nexusart.com.br/plans",
	},
	language.Spanish: {
		MsgRegister:        "¡Hola! Para usar NexusArt, primero regístrate en nexusart.com.br",
		MsgNoCredits:       "❌ Se acabaron tus créditos. Actualiza tu plan en nexusart.com.br/plans",
		MsgHelp:            "🤖 *NexusArt - Ayuda*\n\n📱 *Cómo usar:*\n1. Escribe o graba tu promoción\n2. Recibe el arte en segundos\n3. Compártelo con tus clientes\n\n⚡ *Comandos:*\n• *menu* - Ver este menú\n• *creditos* - Ver créditos restantes",
		MsgCredits:         "💰 *Tus Créditos*\n\n• Usados: %d\n• Límite: %d\n• Restantes: %d\n\nPlan: %s",
		MsgProcessingText:  "✍️ Procesando tu mensaje... ¡El arte llega en instantes!",
		MsgProcessingAudio: "🎤 Procesando tu audio... ¡En segundos recibirás el arte!",
		MsgTranscribed:     "✅ ¡Audio transcrito!\n\n📝 *Transcripción:*\n%s\n\n⚡ Generando arte...",
		MsgSuccess:         "✅ ¡Tu arte está listo!\n\n📝 *Tu promoción:*\n%s\n\n🖼️ *Arte:*\n%s\n\n💡 Créditos restantes: %d",
		MsgFailed:          "❌ No pudimos generar tu arte. Inténtalo de nuevo con un texto más claro.",
		MsgFailedAudio:     "❌ No pudimos procesar tu audio. Inténtalo de nuevo o envía un texto.",
		MsgLowCredits:      "⚠️ Solo quedan %d créditos en tu plan. Renueva en nexusart.com.br/plans",
		MsgVerification:    "🔐 Tu código de verificación de NexusArt es %s. Expira en 15 minutos.",
		MsgTrialExpired:    "⏰ ¡Tu período de prueba terminó! Generaste %d artes. Elige un plan en nexusart.com.br/plans",
	},
}

// Catalog picks the closest supported language for an account locale.
type Catalog struct {
	matcher language.Matcher
}

func NewCatalog() *Catalog {
	return &Catalog{matcher: language.NewMatcher(supported)}
}

// Text formats message id in the best match for locale; pt-BR is the fallback.
func (c *Catalog) Text(locale string, id MessageID, args ...interface{}) string {
	tag := supported[0]
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, conf := c.matcher.Match(parsed)
			if conf != language.No {
				tag = supported[idx]
			}
		}
	}
	format := texts[tag][id]
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
