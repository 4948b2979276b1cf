// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"fmt"
	"strings"

	"github.com/bcem/supportdesk/internal/models"
)

// FallbackReply is sent as the draft when the model cannot produce one.
const FallbackReply = `Благодарим за обращение в службу технической поддержки ЭРИС.

Ваш запрос получен и зарегистрирован. Наш специалист рассмотрит его в ближайшее время и свяжется с вами.

С уважением,
Служба технической поддержки ЭРИС`

var systemPrompt = `Ты — агент технической поддержки производителя газоаналитического оборудования ЭРИС.
Проанализируй обращение клиента и верни JSON строго по схеме.

ПРАВИЛА:
1. Отвечай на языке обращения.
2. Будь вежливым и конкретным. Опирайся на похожие обращения и статьи базы знаний, если они приведены; похожие обращения важнее статей.
3. Не выдумывай модели приборов, серийные номера, телефоны и имена. Если данных нет, оставь поле пустым.
4. sentiment: positive, neutral или negative.
5. request_category: строго одно из значений: ` + strings.Join(models.Categories, ", ") + `.
6. issue_summary: одно-два предложения о сути проблемы.
7. reply: готовый ответ клиенту, 2-6 предложений.
8. operator_required: true, если нужна помощь специалиста (авария, угроза безопасности, юридические претензии, проблемы с оплатой, явная просьба связаться с человеком); operator_reason: кратко почему.`

// buildUserPrompt renders the case and retrieved context for the model.
func buildUserPrompt(in Input, retrieved string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Отправитель: %s\n", in.SenderEmail)
	fmt.Fprintf(&b, "Тема: %s\n\n", in.Subject)
	fmt.Fprintf(&b, "Текст обращения:\n%s\n", in.Body)

	if in.AttachmentsSummary != "" {
		fmt.Fprintf(&b, "\nВложения:\n%s\n", in.AttachmentsSummary)
	}
	if in.AttachmentsText != "" {
		fmt.Fprintf(&b, "\nТекст из вложений:\n%s\n", in.AttachmentsText)
	}
	if retrieved != "" {
		fmt.Fprintf(&b, "\nКонтекст:\n%s\n", retrieved)
	}
	return b.String()
}

// joinContext places past cases ahead of knowledge articles.
func joinContext(history, articles string) string {
	var parts []string
	if history != "" {
		parts = append(parts, "## Похожие обращения\n"+history)
	}
	if articles != "" {
		parts = append(parts, "## База знаний\n"+articles)
	}
	return strings.Join(parts, "\n\n")
}
