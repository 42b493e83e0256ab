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

package functiontool_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/tool/functiontool"
	"github.com/kadirpekel/paygate/pkg/x402"
)

type mapState map[string]any

func (s mapState) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

func (s mapState) Set(key string, value any) { s[key] = value }
func (s mapState) Delete(key string)         { delete(s, key) }

func testContext() tool.Context {
	return tool.NewContext(context.Background(), "call-1", mapState{})
}

func TestNew_SimpleArgs(t *testing.T) {
	type SimpleArgs struct {
		Name string `json:"name" jsonschema:"required,description=User name"`
		Age  int    `json:"age,omitempty" jsonschema:"description=User age,minimum=0,maximum=150"`
	}

	greet, err := functiontool.New(
		functiontool.Config{Name: "greet", Description: "Greet a user"},
		func(ctx tool.Context, args SimpleArgs) (map[string]any, error) {
			return map[string]any{"greeting": fmt.Sprintf("Hello, %s! Age: %d", args.Name, args.Age)}, nil
		},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if greet.Name() != "greet" {
		t.Errorf("Name() = %q, want greet", greet.Name())
	}

	schema := greet.Schema()
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", schema)
	}
	if _, ok := props["name"]; !ok {
		t.Error("expected name property")
	}
	required, _ := schema["required"].([]any)
	if len(required) != 1 || required[0] != "name" {
		t.Errorf("required = %v, want [name]", required)
	}

	res, err := greet.Call(testContext(), map[string]any{"name": "Ada", "age": 36.0})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if res.Payment != nil {
		t.Error("plain tool must not request payment")
	}
	if got := res.Data["greeting"]; got != "Hello, Ada! Age: 36" {
		t.Errorf("greeting = %v", got)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	fn := func(tool.Context, struct{}) (map[string]any, error) { return nil, nil }
	if _, err := functiontool.New(functiontool.Config{Description: "x"}, fn); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := functiontool.New(functiontool.Config{Name: "x"}, fn); err == nil {
		t.Error("expected error for missing description")
	}
}

func TestCall_InvalidArgs(t *testing.T) {
	type Args struct {
		Count int `json:"count"`
	}
	counter, err := functiontool.New(functiontool.Config{Name: "count", Description: "Count"},
		func(tool.Context, Args) (map[string]any, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}
	_, err = counter.Call(testContext(), map[string]any{"count": "many"})
	if err == nil || !strings.Contains(err.Error(), "invalid arguments for count") {
		t.Errorf("expected invalid arguments error, got %v", err)
	}
}

func TestCall_FunctionError(t *testing.T) {
	boom := errors.New("boom")
	failing, err := functiontool.New(functiontool.Config{Name: "fail", Description: "Fails"},
		func(tool.Context, struct{}) (map[string]any, error) { return nil, boom })
	if err != nil {
		t.Fatal(err)
	}
	if _, err := failing.Call(testContext(), nil); !errors.Is(err, boom) {
		t.Errorf("Call() error = %v, want boom", err)
	}
}

func TestNewWithResult_Payment(t *testing.T) {
	type Args struct {
		Product string `json:"product" jsonschema:"required"`
	}
	paid, err := functiontool.NewWithResult(functiontool.Config{Name: "buy", Description: "Buy"},
		func(ctx tool.Context, args Args) (tool.Result, error) {
			ctx.State().Set("last", args.Product)
			return tool.Result{Payment: &tool.NeedsPayment{
				Product:      args.Product,
				Requirements: []x402.PaymentRequirements{{Scheme: "exact", Amount: "1"}},
			}}, nil
		})
	if err != nil {
		t.Fatal(err)
	}

	ctx := testContext()
	res, err := paid.Call(ctx, map[string]any{"product": "banana"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Payment == nil || res.Payment.Product != "banana" {
		t.Fatalf("expected payment request for banana, got %+v", res)
	}
	if v, _ := ctx.State().Get("last"); v != "banana" {
		t.Errorf("state not written through context: %v", v)
	}
}
