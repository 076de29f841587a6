package config

import (
	"errors"
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

func MakeConnStr(conf Database) (string, error) {
	host, err := commoncfg.LoadValueFromSourceRef(conf.Host)
	if err != nil {
		return "", fmt.Errorf("loading db host: %w", err)
	}

	user, err := commoncfg.LoadValueFromSourceRef(conf.User)
	if err != nil {
		return "", fmt.Errorf("loading db user: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(conf.Password)
	if err != nil {
		return "", fmt.Errorf("loading db password: %w", err)
	}

	sslMode := conf.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, string(password), conf.Name, conf.Port, sslMode), nil
}

// ClientCredentials resolves the upstream OAuth client id and secret.
func ClientCredentials(conf Linking) (clientID, clientSecret string, _ error) {
	id, err := commoncfg.LoadValueFromSourceRef(conf.ClientID)
	if err != nil {
		return "", "", fmt.Errorf("loading client id: %w", err)
	}

	if len(id) == 0 {
		return "", "", errors.New("client id is empty")
	}

	secret, err := commoncfg.LoadValueFromSourceRef(conf.ClientSecret)
	if err != nil {
		return "", "", fmt.Errorf("loading client secret: %w", err)
	}

	return string(id), string(secret), nil
}
