// Package i18n localises user-facing error messages.
package i18n

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/crm-ims/crm-ims/internal/shared"
)

var supported = []language.Tag{language.English, language.Russian}

var matcher = language.NewMatcher(supported)

// ru holds Russian translations keyed by the English message format.
var ru = [][2]string{
	{"authentication required", "требуется аутентификация"},
	{"insufficient permissions", "недостаточно прав"},
	{"invalid username or password", "неверное имя пользователя или пароль"},
	{"account is inactive", "учётная запись отключена"},
	{"invalid request body", "некорректное тело запроса"},
	{"invalid %s", "некорректное значение %s"},
	{"field %s failed %s validation", "поле %s не прошло проверку %s"},
	{"product %d not found", "товар %d не найден"},
	{"warehouse %d not found", "склад %d не найден"},
	{"customer %d not found", "клиент %d не найден"},
	{"lead %d not found", "лид %d не найден"},
	{"invalid lead status %q", "недопустимый статус лида %q"},
	{"invalid lead priority %q", "недопустимый приоритет лида %q"},
	{"estimated value must not be negative", "оценочная стоимость не может быть отрицательной"},
	{"lead references a missing customer or user", "лид ссылается на несуществующего клиента или пользователя"},
	{"supplier %d not found", "поставщик %d не найден"},
	{"user %v not found", "пользователь %v не найден"},
	{"sales order %d not found", "заказ %d не найден"},
	{"purchase order %d not found", "заказ на закупку %d не найден"},
	{"inventory record %d not found", "запись остатков %d не найдена"},
	{"product with SKU %q already exists", "товар с артикулом %q уже существует"},
	{"warehouse with code %q already exists", "склад с кодом %q уже существует"},
	{"supplier with code %q already exists", "поставщик с кодом %q уже существует"},
	{"username or email already registered", "имя пользователя или email уже зарегистрированы"},
	{"you cannot change your own role", "нельзя изменить собственную роль"},
	{"you cannot deactivate your own account", "нельзя отключить собственную учётную запись"},
	{"password must be at least %d characters", "пароль должен содержать не менее %d символов"},
	{"password must be at most %d characters", "пароль должен содержать не более %d символов"},
	{"current password is incorrect", "неверный текущий пароль"},
	{"%s is required", "поле %s обязательно"},
	{"warehouse %d still holds inventory", "на складе %d есть остатки"},
	{"record is referenced by other records", "запись используется другими записями"},
	{"order must contain at least one item", "заказ должен содержать хотя бы одну позицию"},
	{"quantity must be greater than zero", "количество должно быть больше нуля"},
	{"quantity must not be negative", "количество не может быть отрицательным"},
	{"price must not be negative", "цена не может быть отрицательной"},
	{"price allows at most %d decimal places", "цена допускает не более %d знаков после запятой"},
	{"quantity allows at most %d decimal places", "количество допускает не более %d знаков после запятой"},
	{"discount exceeds line amount for product %d", "скидка превышает сумму позиции товара %d"},
	{"discount exceeds order amount", "скидка превышает сумму заказа"},
	{"no warehouse specified for product %d", "не указан склад для товара %d"},
	{"no receiving warehouse specified", "не указан склад для приёмки"},
	{"no inventory for product %d at warehouse %d", "нет остатков товара %d на складе %d"},
	{"invalid order status %q", "недопустимый статус заказа %q"},
	{"invalid purchase order status %q", "недопустимый статус закупки %q"},
	{"sales order in status %s cannot move to %s", "заказ в статусе %s нельзя перевести в %s"},
	{"warehouse %d does not match warehouse %d reserved for product %d", "склад %d не совпадает со складом %d, зарезервированным для товара %d"},
	{"only pending or cancelled orders can be deleted", "удалять можно только новые или отменённые заказы"},
	{"purchase order already received", "заказ на закупку уже получен"},
	{"received purchase order cannot be deleted", "полученный заказ на закупку нельзя удалить"},
	{"received purchase order cannot be changed", "полученный заказ на закупку нельзя изменить"},
	{"invalid adjustment type %q", "недопустимый тип корректировки %q"},
	{"reserved quantity cannot exceed on-hand quantity", "резерв не может превышать остаток"},
	{"request with this idempotency key was already processed", "запрос с этим ключом идемпотентности уже обработан"},
	{"could not allocate a unique order number", "не удалось выделить уникальный номер заказа"},
	{"internal error", "внутренняя ошибка"},
	{shared.MsgInsufficientStock, "недостаточно товара %q: доступно %s, запрошено %s"},
	{shared.MsgInsufficientReservation, "недостаточно резерва товара %d на складе %d: зарезервировано %s, требуется %s"},
}

func init() {
	for _, entry := range ru {
		_ = message.SetString(language.Russian, entry[0], entry[1])
	}
}

// Match picks the best supported language for an Accept-Language header.
func Match(acceptLanguage, fallback string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	if len(tags) == 0 {
		if fb, err := language.Parse(fallback); err == nil {
			tags = []language.Tag{fb}
		}
	}
	tag, _, _ := matcher.Match(tags...)
	base, _ := tag.Base()
	for _, s := range supported {
		if b, _ := s.Base(); b == base {
			return s
		}
	}
	return language.English
}

// Middleware stores the negotiated locale in the request context.
func Middleware(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := Match(r.Header.Get("Accept-Language"), fallback)
			w.Header().Set("Content-Language", tag.String())
			next.ServeHTTP(w, r.WithContext(shared.ContextWithLocale(r.Context(), tag.String())))
		})
	}
}

// Printer returns a message printer for a locale tag, English when unparsable.
func Printer(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

// Sprintf localises format with args for locale.
func Sprintf(locale, format string, args ...any) string {
	return Printer(locale).Sprintf(format, args...)
}
