package session

import "fmt"

// messages mirrors the teacher's flat locale map, keyed "pt" instead of
// "uz" for this deployment's driver population.
var messages = map[string]string{
	"greet_waiting_id": "👋 Bem-vindo! Para continuar, envie seu ID de motorista (somente números).",
	"invalid_id":       "❌ ID não encontrado. Envie novamente seu ID de motorista.",
	"greet_by_name":    "✅ Olá, %s! Você está conectado.",
	"menu":             "🚖 Menu\n\n1 - Ver rotas disponíveis\n2 - Ajuda\n\nDigite \"encerrar\" para sair.",
	"menu_invalid":     "❓ Opção inválida.",
	"session_closed":   "👋 Sessão encerrada. Envie qualquer mensagem para começar novamente.",
	"already_assigned": "🚫 Você já possui uma rota em andamento. Finalize-a antes de pedir outra.",
	"entered_queue":    "⏳ Você está na fila. Avisaremos quando for sua vez (posição %d).",
	"still_in_queue":   "⏳ Você ainda está na fila, aguarde sua vez.",
	"your_turn":        "🔔 É a sua vez! Escolha uma rota abaixo.",
	"routes_header":    "📍 Rotas disponíveis:\n",
	"routes_line":      "%d. %s ➞ %s — R$ %d\n",
	"routes_empty":     "📭 Não há rotas disponíveis para seu tipo de veículo agora.",
	"route_invalid":    "❓ Opção inválida. Digite o número da rota.",
	"route_unavailable": "🚫 Essa rota já foi pega por outro motorista. Veja as atualizadas:",
	"route_claimed":    "🎉 Rota confirmada: %s ➞ %s — R$ %d",
	"help_menu":        "❓ Ajuda\n\nEscolha uma pergunta ou digite \"voltar\":\n1 - Como funciona a fila?\n2 - Como recebo uma rota?",
	"help_faq_1":       "A fila é organizada por prioridade e tipo de veículo; aguarde ser chamado.",
	"help_faq_2":       "Quando for sua vez, enviaremos as rotas disponíveis para você escolher.",
	"timeout_closed":   "⌛ Sua sessão foi encerrada por inatividade. Envie seu ID para começar de novo.",
	"sync_prompt":      "🔐 Envie a senha para confirmar a sincronização:",
	"sync_wrong_pass":  "❌ Senha incorreta.",
	"sync_in_progress": "⏳ Sincronização em andamento, aguarde um momento.",
	"sync_done":        "✅ Sincronização concluída.",
	"logdiario_empty":  "📭 Nenhum evento registrado hoje.",
}

func msg(key string, args ...interface{}) string {
	tmpl, ok := messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
