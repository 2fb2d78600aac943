package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"botdesk/internal/models"
	"botdesk/internal/pkg/utils"
)

// buyUnique is the callback unique of catalog buttons; the payload is the product id.
const buyUnique = "buy"

const maxCatalogButtons = 30

// CatalogKeyboard builds the inline keyboard listing a bot's products, one
// buy button per row.
func CatalogKeyboard(products []models.Product) *tele.ReplyMarkup {
	if len(products) == 0 {
		return nil
	}
	if len(products) > maxCatalogButtons {
		products = products[:maxCatalogButtons]
	}

	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(products))
	for _, p := range products {
		label := fmt.Sprintf("%s · %s", p.Name, utils.FormatPrice(p.Price, p.Currency))
		rows = append(rows, menu.Row(menu.Data(label, buyUnique, strconv.FormatUint(uint64(p.ID), 10))))
	}
	menu.Inline(rows...)
	return menu
}
