package grpcsvc

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/supplier"
	"github.com/vladislavdragonenkov/storefront/internal/service/taxonomy"
)

// AuthorizationHeader — ключ метаданных с bearer-токеном.
const AuthorizationHeader = "authorization"

// BackOffice — gRPC API сотрудников и поставщиков: модерация поставщиков
// и товаров, справочники, очередь заказов, отчёт о продажах.
type BackOffice struct {
	suppliers *supplier.Service
	catalog   *catalog.Service
	taxonomy  *taxonomy.Service
	orders    *ordering.Service
	guard     *idempotency.Guard
	logger    *log.Entry
}

// NewBackOffice конструирует сервис. guard может быть nil: тогда ключи
// идемпотентности игнорируются.
func NewBackOffice(
	suppliers *supplier.Service,
	catalogSvc *catalog.Service,
	taxonomySvc *taxonomy.Service,
	orders *ordering.Service,
	guard *idempotency.Guard,
	logger *log.Entry,
) *BackOffice {
	if logger == nil {
		logger = log.WithField("component", "backoffice-grpc")
	}
	return &BackOffice{
		suppliers: suppliers,
		catalog:   catalogSvc,
		taxonomy:  taxonomySvc,
		orders:    orders,
		guard:     guard,
		logger:    logger,
	}
}

// RegisterSupplier регистрирует аккаунт поставщика.
func (s *BackOffice) RegisterSupplier(ctx context.Context, req *RegisterSupplierRequest) (*Supplier, error) {
	return withIdempotency(s, ctx, methodRegisterSupplier, req, false, func(ctx context.Context) (*Supplier, error) {
		account, err := s.suppliers.Register(ctx, auth.CallerFrom(ctx), supplier.RegisterInput{
			UserID:      req.UserID,
			CompanyName: req.CompanyName,
			TaxID:       req.TaxID,
		})
		if err != nil {
			return nil, toStatus(s.logger, methodRegisterSupplier, err)
		}
		return toSupplier(account), nil
	})
}

// GetSupplier возвращает поставщика.
func (s *BackOffice) GetSupplier(ctx context.Context, req *IDRequest) (*Supplier, error) {
	account, err := s.suppliers.Get(ctx, auth.CallerFrom(ctx), req.ID)
	if err != nil {
		return nil, toStatus(s.logger, methodGetSupplier, err)
	}
	return toSupplier(account), nil
}

// ListSuppliers — список поставщиков для модерации.
func (s *BackOffice) ListSuppliers(ctx context.Context, req *ListSuppliersRequest) (*SupplierList, error) {
	accounts, err := s.suppliers.List(ctx, auth.CallerFrom(ctx), domain.SupplierState(req.State), req.Limit)
	if err != nil {
		return nil, toStatus(s.logger, methodListSuppliers, err)
	}
	resp := &SupplierList{Suppliers: make([]Supplier, 0, len(accounts))}
	for _, account := range accounts {
		resp.Suppliers = append(resp.Suppliers, *toSupplier(account))
	}
	return resp, nil
}

// SetSupplierState одобряет или отключает поставщика.
func (s *BackOffice) SetSupplierState(ctx context.Context, req *SetSupplierStateRequest) (*Supplier, error) {
	return withIdempotency(s, ctx, methodSetSupplierState, req, false, func(ctx context.Context) (*Supplier, error) {
		account, err := s.suppliers.SetState(ctx, auth.CallerFrom(ctx), req.ID, domain.SupplierState(req.State))
		if err != nil {
			return nil, toStatus(s.logger, methodSetSupplierState, err)
		}
		return toSupplier(account), nil
	})
}

// SubmitEntry создаёт товар на модерацию.
func (s *BackOffice) SubmitEntry(ctx context.Context, req *SubmitEntryRequest) (*Entry, error) {
	return withIdempotency(s, ctx, methodSubmitEntry, req, false, func(ctx context.Context) (*Entry, error) {
		entry, err := s.catalog.Submit(ctx, auth.CallerFrom(ctx), catalog.SubmitInput{
			SupplierID: req.SupplierID,
			Draft:      req.Draft.toDomain(),
		})
		return s.entryResponse(methodSubmitEntry, entry, err)
	})
}

// EditEntry правит товар.
func (s *BackOffice) EditEntry(ctx context.Context, req *EditEntryRequest) (*Entry, error) {
	return withIdempotency(s, ctx, methodEditEntry, req, false, func(ctx context.Context) (*Entry, error) {
		entry, err := s.catalog.Edit(ctx, auth.CallerFrom(ctx), req.ID, req.Draft.toDomain())
		return s.entryResponse(methodEditEntry, entry, err)
	})
}

// ActivateEntry одобряет товар и задаёт наценку.
func (s *BackOffice) ActivateEntry(ctx context.Context, req *ActivateEntryRequest) (*Entry, error) {
	return withIdempotency(s, ctx, methodActivateEntry, req, false, func(ctx context.Context) (*Entry, error) {
		entry, err := s.catalog.Activate(ctx, auth.CallerFrom(ctx), req.ID, req.MarkupPercent)
		return s.entryResponse(methodActivateEntry, entry, err)
	})
}

// SuspendEntry снимает товар с продажи.
func (s *BackOffice) SuspendEntry(ctx context.Context, req *IDRequest) (*Entry, error) {
	return withIdempotency(s, ctx, methodSuspendEntry, req, false, func(ctx context.Context) (*Entry, error) {
		entry, err := s.catalog.Suspend(ctx, auth.CallerFrom(ctx), req.ID)
		return s.entryResponse(methodSuspendEntry, entry, err)
	})
}

// ReactivateEntry возвращает снятый товар на модерацию.
func (s *BackOffice) ReactivateEntry(ctx context.Context, req *IDRequest) (*Entry, error) {
	return withIdempotency(s, ctx, methodReactivateEntry, req, false, func(ctx context.Context) (*Entry, error) {
		entry, err := s.catalog.Reactivate(ctx, auth.CallerFrom(ctx), req.ID)
		return s.entryResponse(methodReactivateEntry, entry, err)
	})
}

// DeleteEntry удаляет товар без позиций заказов.
func (s *BackOffice) DeleteEntry(ctx context.Context, req *IDRequest) (*Empty, error) {
	return withIdempotency(s, ctx, methodDeleteEntry, req, false, func(ctx context.Context) (*Empty, error) {
		if err := s.catalog.Delete(ctx, auth.CallerFrom(ctx), req.ID); err != nil {
			return nil, toStatus(s.logger, methodDeleteEntry, err)
		}
		return &Empty{}, nil
	})
}

// GetEntry возвращает товар с учётом видимости.
func (s *BackOffice) GetEntry(ctx context.Context, req *IDRequest) (*Entry, error) {
	entry, err := s.catalog.Get(ctx, auth.CallerFrom(ctx), req.ID)
	return s.entryResponse(methodGetEntry, entry, err)
}

// ListEntries — выборка товаров для модерации или кабинета поставщика.
func (s *BackOffice) ListEntries(ctx context.Context, req *ListEntriesRequest) (*EntryList, error) {
	entries, err := s.catalog.List(ctx, auth.CallerFrom(ctx), catalog.ListFilter{
		CategoryID:  req.CategoryID,
		SupplierID:  req.SupplierID,
		State:       domain.CatalogState(req.State),
		InStockOnly: req.InStockOnly,
		Mine:        req.Mine,
		Limit:       req.Limit,
	})
	if err != nil {
		return nil, toStatus(s.logger, methodListEntries, err)
	}
	resp := &EntryList{Entries: make([]Entry, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, toEntry(entry))
	}
	return resp, nil
}

// SupplierSales — проданные позиции поставщика и заработок по базовой цене.
func (s *BackOffice) SupplierSales(ctx context.Context, req *SupplierSalesRequest) (*SalesReport, error) {
	sales, err := s.suppliers.Sales(ctx, auth.CallerFrom(ctx), req.SupplierID, req.Limit)
	if err != nil {
		return nil, toStatus(s.logger, methodSupplierSales, err)
	}
	resp := &SalesReport{Sales: make([]Sale, 0, len(sales)), TotalEarnings: decimal.Zero}
	for _, sale := range sales {
		resp.Sales = append(resp.Sales, Sale{
			OrderID:    sale.OrderID,
			OrderState: string(sale.OrderState),
			EntryID:    sale.EntryID,
			EntryName:  sale.EntryName,
			Quantity:   sale.Quantity,
			BasePrice:  sale.BasePrice,
			Earnings:   sale.Earnings,
			SoldAt:     sale.SoldAt,
		})
		resp.TotalEarnings = resp.TotalEarnings.Add(sale.Earnings)
	}
	return resp, nil
}

// ConfirmOrder подтверждает заказ после повторной проверки остатков.
func (s *BackOffice) ConfirmOrder(ctx context.Context, req *IDRequest) (*Order, error) {
	return withIdempotency(s, ctx, methodConfirmOrder, req, false, func(ctx context.Context) (*Order, error) {
		order, err := s.orders.Confirm(ctx, auth.CallerFrom(ctx), req.ID)
		return s.orderResponse(methodConfirmOrder, order, err)
	})
}

// RejectOrder отклоняет заказ.
func (s *BackOffice) RejectOrder(ctx context.Context, req *RejectOrderRequest) (*Order, error) {
	return withIdempotency(s, ctx, methodRejectOrder, req, false, func(ctx context.Context) (*Order, error) {
		order, err := s.orders.Reject(ctx, auth.CallerFrom(ctx), req.ID, req.Reason)
		return s.orderResponse(methodRejectOrder, order, err)
	})
}

// ShipOrder отгружает заказ и списывает остаток. Повторная отгрузка с тем же
// ключом возвращает сохранённый ответ, поэтому ключ обязателен.
func (s *BackOffice) ShipOrder(ctx context.Context, req *IDRequest) (*Order, error) {
	return withIdempotency(s, ctx, methodShipOrder, req, true, func(ctx context.Context) (*Order, error) {
		order, err := s.orders.Ship(ctx, auth.CallerFrom(ctx), req.ID)
		return s.orderResponse(methodShipOrder, order, err)
	})
}

// GetOrder возвращает заказ с историей статусов.
func (s *BackOffice) GetOrder(ctx context.Context, req *IDRequest) (*Order, error) {
	view, err := s.orders.Get(ctx, auth.CallerFrom(ctx), req.ID)
	if err != nil {
		return nil, toStatus(s.logger, methodGetOrder, err)
	}
	resp := toOrder(view.Order, view.Timeline)
	return &resp, nil
}

// ListOrdersByState — очередь заказов в статусе.
func (s *BackOffice) ListOrdersByState(ctx context.Context, req *ListOrdersRequest) (*OrderList, error) {
	orders, err := s.orders.ListByState(ctx, auth.CallerFrom(ctx), domain.OrderState(req.State), req.Limit)
	if err != nil {
		return nil, toStatus(s.logger, methodListOrdersByState, err)
	}
	resp := &OrderList{Orders: make([]Order, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrder(order, nil))
	}
	return resp, nil
}

func (s *BackOffice) entryResponse(method string, entry domain.CatalogEntry, err error) (*Entry, error) {
	if err != nil {
		return nil, toStatus(s.logger, method, err)
	}
	resp := toEntry(entry)
	return &resp, nil
}

func (s *BackOffice) orderResponse(method string, order domain.Order, err error) (*Order, error) {
	if err != nil {
		return nil, toStatus(s.logger, method, err)
	}
	resp := toOrder(order, nil)
	return &resp, nil
}

// AuthInterceptor разбирает bearer-токен из метаданных и кладёт вызывающего
// в контекст. Без токена вызывающий анонимный, права проверяют сервисы.
func AuthInterceptor(tokens *auth.Tokens) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(AuthorizationHeader); len(values) > 0 {
				header = values[0]
			}
		}
		caller, err := tokens.CallerFromHeader(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(auth.WithCaller(ctx, caller), req)
	}
}
