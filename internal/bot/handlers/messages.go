package handlers

// User-facing reply texts. Mia speaks Spanish.
const (
	msgNotAuthorized = "⛔ No tienes acceso a Mia."
	msgThinking      = "⏳ Mia está pensando..."
	msgGeneralError  = "❌ Ocurrió un error. Usa /new para iniciar una nueva conversación."
	msgNothingRetry  = "⚠️ No hay nada que reintentar."
	msgVoiceEmpty    = "❌ No pude entender el audio."
	msgVoiceError    = "❌ Error al procesar el audio."
	msgImageError    = "❌ Error al generar la imagen. Intenta con otra descripción."
	msgImageUsage    = "🎨 Uso: `/image <descripción>`\n\nEjemplo:\n`/image un gato astronauta en el espacio`"
	msgPickMode      = "🎭 *Elige un modo de chat:*"

	msgWelcome = "👋 ¡Hola, *%s*! Soy *Mia*, tu asistente de IA.\n\n" +
		"Puedo ayudarte con preguntas, redacción, código, imágenes y mucho más.\n\n" +
		"📌 *Comandos disponibles:*\n" +
		"• /new — Nueva conversación\n" +
		"• /mode — Cambiar modo de chat\n" +
		"• /image `<descripción>` — Generar imagen\n" +
		"• /retry — Reintentar última respuesta\n" +
		"• /balance — Ver uso de tokens\n" +
		"• /settings — Configuración\n" +
		"• /help — Ayuda\n\n" +
		"¡Escríbeme lo que necesites! 💬"
)
