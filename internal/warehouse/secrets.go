package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// warehouseSecret is the JSON shape stored in Secrets Manager for the
// warehouse account.
type warehouseSecret struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// FetchDSN retrieves warehouse credentials from AWS Secrets Manager and
// assembles a Postgres connection string.
func FetchDSN(ctx context.Context, secretName, region string) (string, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %q: %w", secretName, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string payload", secretName)
	}

	var sec warehouseSecret
	if err := json.Unmarshal([]byte(*out.SecretString), &sec); err != nil {
		return "", fmt.Errorf("failed to decode secret %q: %w", secretName, err)
	}
	if sec.Port == "" {
		sec.Port = "5432"
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(sec.Username, sec.Password),
		Host:   fmt.Sprintf("%s:%s", sec.Host, sec.Port),
		Path:   "/" + sec.Database,
	}
	return dsn.String(), nil
}
