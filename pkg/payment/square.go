package payment

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/square"
)

// SquareProvider confirms payment setup by vaulting the tokenized card
// with Square, passing the intent's client secret as the verification
// token.
type SquareProvider struct {
	client *square.Client
}

func NewSquareProvider(client *square.Client) (*SquareProvider, error) {
	if client == nil {
		return nil, errors.New("square client is required")
	}
	return &SquareProvider{client: client}, nil
}

func (p *SquareProvider) ConfirmSetup(ctx context.Context, clientSecret string, inst Instrument) (MethodRef, error) {
	if strings.TrimSpace(clientSecret) == "" {
		return "", pkgerrors.New(pkgerrors.CodePaymentFailed, "payment setup secret is missing")
	}
	if strings.TrimSpace(inst.SourceID) == "" {
		return "", pkgerrors.New(pkgerrors.CodePaymentFailed, "payment instrument token is missing")
	}

	card, err := p.client.CreateCard(ctx, square.CardCreateParams{
		SourceID:          inst.SourceID,
		CardholderName:    inst.CardholderName,
		VerificationToken: clientSecret,
	})
	if err != nil {
		return "", err
	}
	if card == nil || card.GetID() == nil || *card.GetID() == "" {
		return "", pkgerrors.New(pkgerrors.CodePaymentFailed, "provider returned no payment method")
	}
	return MethodRef(*card.GetID()), nil
}
