package service

import (
	"fides/internal/vc"
)

// PreAuthorizedCodeGrant is the pre-authorized code grant entry of a
// credential offer.
type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string `json:"pre-authorized_code"`
}

type OfferGrants struct {
	PreAuthorizedCode PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code"`
}

// CredentialOffer is the document served at the credential offer URI.
type CredentialOffer struct {
	CredentialIssuer           string      `json:"credential_issuer"`
	Grants                     OfferGrants `json:"grants"`
	CredentialConfigurationIDs []string    `json:"credential_configuration_ids"`
}

// CredentialConfiguration describes one issuable credential type in the
// discovery metadata.
type CredentialConfiguration struct {
	Format                               string               `json:"format"`
	CryptographicBindingMethodsSupported []string             `json:"cryptographic_binding_methods_supported"`
	CredentialSigningAlgValuesSupported  []string             `json:"credential_signing_alg_values_supported"`
	CredentialDefinition                 CredentialDefinition `json:"credential_definition"`
}

type CredentialDefinition struct {
	Type []string `json:"type"`
}

// IssuerMetadata is the openid-credential-issuer discovery document.
type IssuerMetadata struct {
	Issuer                            string                             `json:"issuer"`
	CredentialIssuer                  string                             `json:"credential_issuer"`
	CredentialEndpoint                string                             `json:"credential_endpoint"`
	JwksURI                           string                             `json:"jwks_uri"`
	CredentialConfigurationsSupported map[string]CredentialConfiguration `json:"credential_configurations_supported"`
	AuthorizationServers              []string                           `json:"authorization_servers"`
}

// AuthServerMetadata is the oauth-authorization-server discovery document.
type AuthServerMetadata struct {
	Issuer                               string                             `json:"issuer"`
	CredentialIssuer                     string                             `json:"credential_issuer"`
	CredentialEndpoint                   string                             `json:"credential_endpoint"`
	AuthorizationEndpoint                string                             `json:"authorization_endpoint"`
	PushedAuthorizationRequestEndpoint   string                             `json:"pushed_authorization_request_endpoint"`
	TokenEndpoint                        string                             `json:"token_endpoint"`
	JwksURI                              string                             `json:"jwks_uri"`
	BatchCredentialEndpoint              string                             `json:"batch_credential_endpoint"`
	DeferredCredentialEndpoint           string                             `json:"deferred_credential_endpoint"`
	ScopesSupported                      []string                           `json:"scopes_supported"`
	ResponseTypesSupported               []string                           `json:"response_types_supported"`
	ResponseModesSupported               []string                           `json:"response_modes_supported"`
	GrantTypesSupported                  []string                           `json:"grant_types_supported"`
	SubjectTypesSupported                []string                           `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported     []string                           `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported        []string                           `json:"code_challenge_methods_supported"`
	CredentialConfigurationsSupported    map[string]CredentialConfiguration `json:"credential_configurations_supported"`
	AuthorizationServers                 []string                           `json:"authorization_servers"`
}

// TokenResponse is returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenRequest is the wallet's pre-authorized code grant request.
type TokenRequest struct {
	GrantType         string `json:"grant_type"`
	PreAuthorizedCode string `json:"pre-authorized_code"`
	TxCode            string `json:"tx_code,omitempty"`
}

// Proof is the holder's proof of possession inside a credential request.
type Proof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// CredentialRequest is the wallet's request at the credential endpoint.
type CredentialRequest struct {
	Format string `json:"format"`
	Proof  Proof  `json:"proof"`
}

// IssuedCredential is the credential endpoint response payload.
type IssuedCredential struct {
	Format     string `json:"format"`
	Credential string `json:"credential"`
}

// JWKS exposes the issuer's RSA public key for downstream resolvers.
type JWKS struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Kid string `json:"kid"`
}

func credentialConfigurations(types []vc.Type) map[string]CredentialConfiguration {
	configurations := make(map[string]CredentialConfiguration, len(types))
	for _, t := range types {
		configurations[t.ConfigurationID()] = CredentialConfiguration{
			Format:                               "jwt_vc_json",
			CryptographicBindingMethodsSupported: []string{"did"},
			CredentialSigningAlgValuesSupported:  []string{"RSA"},
			CredentialDefinition: CredentialDefinition{
				Type: []string{"VerifiableCredential", t.Name()},
			},
		}
	}
	return configurations
}

func newIssuerMetadata(host string, types []vc.Type) IssuerMetadata {
	return IssuerMetadata{
		Issuer:                            host,
		CredentialIssuer:                  host,
		CredentialEndpoint:                host + "/credential",
		JwksURI:                           host + "/jwks",
		CredentialConfigurationsSupported: credentialConfigurations(types),
		AuthorizationServers:              []string{host},
	}
}

func newAuthServerMetadata(host string, types []vc.Type) AuthServerMetadata {
	return AuthServerMetadata{
		Issuer:                             host,
		CredentialIssuer:                   host,
		CredentialEndpoint:                 host + "/credential",
		AuthorizationEndpoint:              host + "/authorize",
		PushedAuthorizationRequestEndpoint: host + "/par",
		TokenEndpoint:                      host + "/token",
		JwksURI:                            host + "/jwks",
		BatchCredentialEndpoint:            host + "/batch_credential",
		DeferredCredentialEndpoint:         host + "/credential_deferred",
		ScopesSupported:                    []string{"openid"},
		ResponseTypesSupported:             []string{"code", "vp_token", "id_token"},
		ResponseModesSupported:             []string{"query", "fragment"},
		GrantTypesSupported: []string{
			"authorization_code",
			"urn:ietf:params:oauth:grant-type:pre-authorized_code",
		},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RSA"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		CredentialConfigurationsSupported: credentialConfigurations(types),
		AuthorizationServers:              []string{host},
	}
}
