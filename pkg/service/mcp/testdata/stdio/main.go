package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type rateParams struct {
	From string `json:"from" jsonschema:"Source currency code, e.g. USD"`
	To   string `json:"to" jsonschema:"Target currency code, e.g. AED"`
}

var usdRates = map[string]float64{
	"USD": 1,
	"AED": 3.6725,
	"EUR": 0.92,
	"JPY": 150,
}

func currencyRate(ctx context.Context, req *mcp.CallToolRequest, params *rateParams) (*mcp.CallToolResult, any, error) {
	from, okFrom := usdRates[strings.ToUpper(params.From)]
	to, okTo := usdRates[strings.ToUpper(params.To)]
	if !okFrom || !okTo {
		return nil, nil, fmt.Errorf("unsupported currency pair %s/%s", params.From, params.To)
	}

	text := fmt.Sprintf("1 %s = %.4f %s", strings.ToUpper(params.From), to/from, strings.ToUpper(params.To))
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

func main() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "currency-stdio-server",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "currency_rate",
		Description: "Exchange rate between two currencies",
	}, currencyRate)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
