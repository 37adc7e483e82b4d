// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evanschultz/barter/internal/adapters/server/common"
	"github.com/evanschultz/barter/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// toolHandler is the mcp-go tool callback signature.
type toolHandler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// actorTokenOption documents the shared bearer-token argument.
var actorTokenOption = mcp.WithString("actor_token", mcp.Description("Bearer token identifying the acting user"))

// NewHandler builds one stateless MCP adapter exposing the marketplace tools.
func NewHandler(cfg Config, service common.MarketplaceService, actors common.ActorResolver) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("marketplace service is required")
	}
	if actors == nil {
		return nil, fmt.Errorf("actor resolver is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerItemTools(mcpSrv, service, actors)
	registerOfferTools(mcpSrv, service, actors)
	registerProfileTools(mcpSrv, service, actors)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "barter"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerItemTools registers item catalog and ownership tools.
func registerItemTools(srv *mcpserver.MCPServer, service common.MarketplaceService, actors common.ActorResolver) {
	srv.AddTool(
		mcp.NewTool(
			"barter.list_items",
			mcp.WithDescription("List every available item, newest first."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := service.ListAvailableItems(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_items", map[string]any{"items": items})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"barter.get_item",
			mcp.WithDescription("Return one item by id."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return invalidArgument(err), nil
			}
			item, err := service.GetItem(ctx, itemID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_item", item)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"barter.my_items",
			mcp.WithDescription("List every item owned by the acting user, in any status."),
			actorTokenOption,
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := service.ListMyItems(ctx, actor)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("my_items", map[string]any{"items": items})
		}),
	)

	srv.AddTool(
		mcp.NewTool(
			"barter.create_item",
			mcp.WithDescription("List a new available item owned by the acting user."),
			actorTokenOption,
			mcp.WithString("title", mcp.Required(), mcp.Description("Item title")),
			mcp.WithString("description", mcp.Description("Free-form description")),
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			title, err := req.RequireString("title")
			if err != nil {
				return invalidArgument(err), nil
			}
			item, err := service.CreateItem(ctx, actor, common.CreateItemRequest{
				Title:       title,
				Description: req.GetString("description", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_item", item)
		}),
	)

	srv.AddTool(
		mcp.NewTool(
			"barter.update_item",
			mcp.WithDescription("Edit the title or description of an item the acting user owns."),
			actorTokenOption,
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("description", mcp.Description("New description")),
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return invalidArgument(err), nil
			}
			args := req.GetArguments()
			item, err := service.UpdateItem(ctx, actor, common.UpdateItemRequest{
				ItemID:      itemID,
				Title:       optionalString(args, "title"),
				Description: optionalString(args, "description"),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("update_item", item)
		}),
	)

	srv.AddTool(
		mcp.NewTool(
			"barter.delete_item",
			mcp.WithDescription("Delete an item the acting user owns."),
			actorTokenOption,
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier")),
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return invalidArgument(err), nil
			}
			if err := service.DeleteItem(ctx, actor, itemID); err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("delete_item", map[string]any{"deleted": itemID})
		}),
	)
}

// registerOfferTools registers offer creation, listing, and lifecycle tools.
func registerOfferTools(srv *mcpserver.MCPServer, service common.MarketplaceService, actors common.ActorResolver) {
	srv.AddTool(
		mcp.NewTool(
			"barter.create_offer",
			mcp.WithDescription("Propose trading one of your available items for another user's available item."),
			actorTokenOption,
			mcp.WithString("offered_item_id", mcp.Required(), mcp.Description("Item the acting user gives")),
			mcp.WithString("wanted_item_id", mcp.Required(), mcp.Description("Item the acting user wants")),
			mcp.WithString("message", mcp.Description("Optional note for the receiver")),
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			offeredID, err := req.RequireString("offered_item_id")
			if err != nil {
				return invalidArgument(err), nil
			}
			wantedID, err := req.RequireString("wanted_item_id")
			if err != nil {
				return invalidArgument(err), nil
			}
			offer, err := service.CreateOffer(ctx, actor, common.CreateOfferRequest{
				OfferedItemID: offeredID,
				WantedItemID:  wantedID,
				Message:       req.GetString("message", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_offer", offer)
		}),
	)

	srv.AddTool(
		mcp.NewTool(
			"barter.get_offer",
			mcp.WithDescription("Return one offer the acting user sent or received."),
			actorTokenOption,
			mcp.WithString("offer_id", mcp.Required(), mcp.Description("Offer identifier")),
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			offerID, err := req.RequireString("offer_id")
			if err != nil {
				return invalidArgument(err), nil
			}
			offer, err := service.GetOffer(ctx, actor, offerID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_offer", offer)
		}),
	)

	srv.AddTool(
		mcp.NewTool(
			"barter.list_offers",
			mcp.WithDescription("List offers the acting user sent or received, newest first."),
			actorTokenOption,
			mcp.WithString("direction", mcp.Required(), mcp.Description("sent or received"), mcp.Enum("sent", "received")),
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			direction, err := req.RequireString("direction")
			if err != nil {
				return invalidArgument(err), nil
			}
			var offers []common.OfferView
			switch strings.ToLower(strings.TrimSpace(direction)) {
			case "sent":
				offers, err = service.ListSentOffers(ctx, actor)
			case "received":
				offers, err = service.ListReceivedOffers(ctx, actor)
			default:
				return invalidArgument(fmt.Errorf("unsupported direction %q", direction)), nil
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_offers", map[string]any{"offers": offers})
		}),
	)

	transitions := []struct {
		name        string
		description string
		run         func(context.Context, domain.Actor, string) (common.OfferView, error)
	}{
		{"accept_offer", "Accept a pending offer you received; both items become exchanged.", service.AcceptOffer},
		{"reject_offer", "Reject a pending offer you received; both items return to available.", service.RejectOffer},
		{"cancel_offer", "Withdraw a pending offer you sent; both items return to available.", service.CancelOffer},
		{"reconcile_offer", "Finish the item updates of a decided offer whose earlier commit was partial.", service.ReconcileOffer},
	}
	for _, tr := range transitions {
		srv.AddTool(
			mcp.NewTool(
				"barter."+tr.name,
				mcp.WithDescription(tr.description),
				actorTokenOption,
				mcp.WithString("offer_id", mcp.Required(), mcp.Description("Offer identifier")),
			),
			withActor(actors, func(ctx context.Context, actor domain.Actor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				offerID, err := req.RequireString("offer_id")
				if err != nil {
					return invalidArgument(err), nil
				}
				offer, err := tr.run(ctx, actor, offerID)
				if err != nil {
					return toolResultFromError(err), nil
				}
				return jsonResult(tr.name, offer)
			}),
		)
	}
}

// registerProfileTools registers acting-user profile tools.
func registerProfileTools(srv *mcpserver.MCPServer, service common.MarketplaceService, actors common.ActorResolver) {
	srv.AddTool(
		mcp.NewTool(
			"barter.get_profile",
			mcp.WithDescription("Return the acting user's profile, creating it on first use."),
			actorTokenOption,
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			profile, err := service.GetProfile(ctx, actor)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_profile", profile)
		}),
	)

	srv.AddTool(
		mcp.NewTool(
			"barter.update_profile",
			mcp.WithDescription("Change the acting user's username."),
			actorTokenOption,
			mcp.WithString("username", mcp.Required(), mcp.Description("New username")),
		),
		withActor(actors, func(ctx context.Context, actor domain.Actor, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			username, err := req.RequireString("username")
			if err != nil {
				return invalidArgument(err), nil
			}
			profile, err := service.UpdateProfile(ctx, actor, common.UpdateProfileRequest{Username: username})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("update_profile", profile)
		}),
	)
}

// withActor resolves actor_token before delegating to next. A missing token yields the anonymous actor.
func withActor(actors common.ActorResolver, next func(context.Context, domain.Actor, mcp.CallToolRequest) (*mcp.CallToolResult, error)) toolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		actor, err := actors.ResolveToken(req.GetString("actor_token", ""))
		if err != nil {
			return toolResultFromError(err), nil
		}
		return next(ctx, actor, req)
	}
}

// optionalString returns a pointer to a string argument when the caller supplied one.
func optionalString(args map[string]any, key string) *string {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil
	}
	value, ok := raw.(string)
	if !ok {
		return nil
	}
	return &value
}

func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

func invalidArgument(err error) *mcp.CallToolResult {
	return toolResultFromError(errors.Join(common.ErrInvalidRequest, err))
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("unknown error")
	}
	code := common.Classify(err)
	text := string(code) + ": " + err.Error()
	if hint := common.ErrorHint(code); hint != "" {
		text += "\nhint: " + hint
	}
	return mcp.NewToolResultError(text)
}
