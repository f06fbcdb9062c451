package utils

import (
	"fmt"
	"log"
	"os"

	"velora_back_end/internal/models"

	"github.com/wneessen/go-mail"
)

// SendOrderStatusEmail notifie l'utilisateur d'un changement de statut de commande
func SendOrderStatusEmail(to string, order models.Order, status models.OrderStatus) error {
	msg := mail.NewMsg()

	if err := msg.From("noreply@velora.shop"); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(fmt.Sprintf("Votre commande Velora — %s", statusLabel(status)))
	msg.SetBodyString(mail.TypeTextHTML, orderStatusHTML(order, status))

	client, err := mail.NewClient(os.Getenv("SMTP_HOST"),
		mail.WithPort(587),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(os.Getenv("SMTP_USERNAME")),
		mail.WithPassword(os.Getenv("SMTP_PASSWORD")),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	log.Println("📤 Envoi de l'e-mail de statut à", to)
	return client.DialAndSend(msg)
}

func statusLabel(status models.OrderStatus) string {
	switch status {
	case models.StatusPaid:
		return "paiement confirmé"
	case models.StatusProcessing:
		return "en préparation"
	case models.StatusShipped:
		return "expédiée"
	case models.StatusDelivered:
		return "livrée"
	case models.StatusPaymentFailed:
		return "paiement refusé"
	case models.StatusCancelled:
		return "annulée"
	case models.StatusRefunded:
		return "remboursée"
	}
	return string(status)
}

func orderStatusHTML(order models.Order, status models.OrderStatus) string {
	itemsHTML := ""
	for _, item := range order.Items {
		itemsHTML += fmt.Sprintf(`
			<tr>
				<td>%s</td>
				<td>%d</td>
				<td>%.2f€</td>
			</tr>`, item.Name, item.Quantity, float64(item.UnitPrice*int64(item.Quantity))/100)
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Commande %s</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Votre commande est %s</h2>
		<p>Bonjour,</p>
		<p>Le statut de votre commande <strong>%s</strong> vient de changer : <strong>%s</strong>.</p>
		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			%s
		</table>
		<p>Total : <strong>%.2f€</strong></p>
		<p style="color: #888; font-size: 12px;">Velora — cet e-mail est envoyé automatiquement.</p>
	</div>
</body>
</html>`, order.ID, statusLabel(status), order.ID, statusLabel(status), itemsHTML,
		float64(order.TotalAmount)/100)
}
