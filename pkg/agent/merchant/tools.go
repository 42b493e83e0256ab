// Copyright 2025 Kadir Pekel
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

package merchant

import (
	"errors"
	"log/slog"

	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/tool/functiontool"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// Tool names the engine sees.
const (
	ToolRequestPayment     = "get_product_details_and_request_payment"
	ToolCheckPaymentStatus = "check_payment_status"
)

type requestPaymentArgs struct {
	ProductName string `json:"product_name" jsonschema:"required,description=Name of the product the user wants to buy"`
}

// newRequestPaymentTool prices a product and suspends the run for payment.
func newRequestPaymentTool(catalog func() *Catalog) (tool.CallableTool, error) {
	return functiontool.NewWithResult(functiontool.Config{
		Name:        ToolRequestPayment,
		Description: "Looks up the price of a product and asks the user to pay for it. Use it whenever the user wants to buy something.",
	}, func(ctx tool.Context, args requestPaymentArgs) (tool.Result, error) {
		if normalize(args.ProductName) == "" {
			return tool.Data(map[string]any{"error": "Product name cannot be empty."}), nil
		}

		req, err := catalog().Requirements(args.ProductName)
		if errors.Is(err, ErrNotForSale) {
			return tool.Data(map[string]any{"error": "Sorry, " + args.ProductName + " is not for sale."}), nil
		}
		if err != nil {
			return tool.Result{}, err
		}

		slog.Debug("Pricing product", "product", args.ProductName, "amount", req.Amount, "network", req.Network)
		return tool.Result{Payment: &tool.NeedsPayment{
			Product:      args.ProductName,
			Requirements: []x402.PaymentRequirements{req},
		}}, nil
	})
}
