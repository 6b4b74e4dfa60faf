package token

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// Scope requested for every token exchange.
const mgmtScope = "https://management.azure.com/.default"

// Exchanger performs the credential exchange with the identity provider.
type Exchanger interface {
	Exchange(ctx context.Context) (Token, error)
}

// AzureExchanger exchanges workload-identity credentials for management
// API bearer tokens via the Azure SDK.
type AzureExchanger struct {
	credential azcore.TokenCredential
}

// NewAzureExchanger builds an exchanger from the pod's workload identity.
// Outside a cluster it falls back to the default credential chain so the
// service can run locally against `az login` credentials.
func NewAzureExchanger() (*AzureExchanger, error) {
	cred, err := azidentity.NewWorkloadIdentityCredential(nil)
	if err == nil {
		return &AzureExchanger{credential: cred}, nil
	}

	chain, chainErr := azidentity.NewDefaultAzureCredential(nil)
	if chainErr != nil {
		return nil, fmt.Errorf("create credential: workload identity: %v; default chain: %w", err, chainErr)
	}
	return &AzureExchanger{credential: chain}, nil
}

// NewExchangerFromCredential wraps an existing SDK credential (tests,
// alternative credential types).
func NewExchangerFromCredential(cred azcore.TokenCredential) *AzureExchanger {
	return &AzureExchanger{credential: cred}
}

// Exchange requests a fresh management-scope token.
func (e *AzureExchanger) Exchange(ctx context.Context) (Token, error) {
	tk, err := e.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{mgmtScope},
	})
	if err != nil {
		return Token{}, fmt.Errorf("token acquisition failed: %w", err)
	}
	return Token{Secret: tk.Token, ExpiresAt: tk.ExpiresOn}, nil
}
