package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "storefront.v1.BackOffice"

const (
	methodRegisterSupplier  = "/" + ServiceName + "/RegisterSupplier"
	methodGetSupplier       = "/" + ServiceName + "/GetSupplier"
	methodListSuppliers     = "/" + ServiceName + "/ListSuppliers"
	methodSetSupplierState  = "/" + ServiceName + "/SetSupplierState"
	methodSubmitEntry       = "/" + ServiceName + "/SubmitEntry"
	methodEditEntry         = "/" + ServiceName + "/EditEntry"
	methodActivateEntry     = "/" + ServiceName + "/ActivateEntry"
	methodSuspendEntry      = "/" + ServiceName + "/SuspendEntry"
	methodReactivateEntry   = "/" + ServiceName + "/ReactivateEntry"
	methodDeleteEntry       = "/" + ServiceName + "/DeleteEntry"
	methodGetEntry          = "/" + ServiceName + "/GetEntry"
	methodListEntries       = "/" + ServiceName + "/ListEntries"
	methodSupplierSales     = "/" + ServiceName + "/SupplierSales"
	methodConfirmOrder      = "/" + ServiceName + "/ConfirmOrder"
	methodRejectOrder       = "/" + ServiceName + "/RejectOrder"
	methodShipOrder         = "/" + ServiceName + "/ShipOrder"
	methodGetOrder          = "/" + ServiceName + "/GetOrder"
	methodListOrdersByState = "/" + ServiceName + "/ListOrdersByState"

	methodCreateCategory     = "/" + ServiceName + "/CreateCategory"
	methodUpdateCategory     = "/" + ServiceName + "/UpdateCategory"
	methodDeleteCategory     = "/" + ServiceName + "/DeleteCategory"
	methodListCategories     = "/" + ServiceName + "/ListCategories"
	methodCreateDeliveryMode = "/" + ServiceName + "/CreateDeliveryMode"
	methodUpdateDeliveryMode = "/" + ServiceName + "/UpdateDeliveryMode"
	methodDeleteDeliveryMode = "/" + ServiceName + "/DeleteDeliveryMode"
	methodListDeliveryModes  = "/" + ServiceName + "/ListDeliveryModes"
)

// BackOfficeServer — серверная сторона storefront.v1.BackOffice.
type BackOfficeServer interface {
	RegisterSupplier(context.Context, *RegisterSupplierRequest) (*Supplier, error)
	GetSupplier(context.Context, *IDRequest) (*Supplier, error)
	ListSuppliers(context.Context, *ListSuppliersRequest) (*SupplierList, error)
	SetSupplierState(context.Context, *SetSupplierStateRequest) (*Supplier, error)
	SubmitEntry(context.Context, *SubmitEntryRequest) (*Entry, error)
	EditEntry(context.Context, *EditEntryRequest) (*Entry, error)
	ActivateEntry(context.Context, *ActivateEntryRequest) (*Entry, error)
	SuspendEntry(context.Context, *IDRequest) (*Entry, error)
	ReactivateEntry(context.Context, *IDRequest) (*Entry, error)
	DeleteEntry(context.Context, *IDRequest) (*Empty, error)
	GetEntry(context.Context, *IDRequest) (*Entry, error)
	ListEntries(context.Context, *ListEntriesRequest) (*EntryList, error)
	SupplierSales(context.Context, *SupplierSalesRequest) (*SalesReport, error)
	ConfirmOrder(context.Context, *IDRequest) (*Order, error)
	RejectOrder(context.Context, *RejectOrderRequest) (*Order, error)
	ShipOrder(context.Context, *IDRequest) (*Order, error)
	GetOrder(context.Context, *IDRequest) (*Order, error)
	ListOrdersByState(context.Context, *ListOrdersRequest) (*OrderList, error)
	CreateCategory(context.Context, *CategoryDraft) (*Category, error)
	UpdateCategory(context.Context, *UpdateCategoryRequest) (*Category, error)
	DeleteCategory(context.Context, *IDRequest) (*Empty, error)
	ListCategories(context.Context, *ListCategoriesRequest) (*CategoryList, error)
	CreateDeliveryMode(context.Context, *DeliveryModeDraft) (*DeliveryMode, error)
	UpdateDeliveryMode(context.Context, *UpdateDeliveryModeRequest) (*DeliveryMode, error)
	DeleteDeliveryMode(context.Context, *IDRequest) (*Empty, error)
	ListDeliveryModes(context.Context, *Empty) (*DeliveryModeList, error)
}

var _ BackOfficeServer = (*BackOffice)(nil)

// BackOfficeServiceDesc описывает сервис для grpc.Server. Сообщения
// кодируются JSONCodec, поэтому клиенту нужен content-subtype "json".
var BackOfficeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BackOfficeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterSupplier", Handler: unary(methodRegisterSupplier, BackOfficeServer.RegisterSupplier)},
		{MethodName: "GetSupplier", Handler: unary(methodGetSupplier, BackOfficeServer.GetSupplier)},
		{MethodName: "ListSuppliers", Handler: unary(methodListSuppliers, BackOfficeServer.ListSuppliers)},
		{MethodName: "SetSupplierState", Handler: unary(methodSetSupplierState, BackOfficeServer.SetSupplierState)},
		{MethodName: "SubmitEntry", Handler: unary(methodSubmitEntry, BackOfficeServer.SubmitEntry)},
		{MethodName: "EditEntry", Handler: unary(methodEditEntry, BackOfficeServer.EditEntry)},
		{MethodName: "ActivateEntry", Handler: unary(methodActivateEntry, BackOfficeServer.ActivateEntry)},
		{MethodName: "SuspendEntry", Handler: unary(methodSuspendEntry, BackOfficeServer.SuspendEntry)},
		{MethodName: "ReactivateEntry", Handler: unary(methodReactivateEntry, BackOfficeServer.ReactivateEntry)},
		{MethodName: "DeleteEntry", Handler: unary(methodDeleteEntry, BackOfficeServer.DeleteEntry)},
		{MethodName: "GetEntry", Handler: unary(methodGetEntry, BackOfficeServer.GetEntry)},
		{MethodName: "ListEntries", Handler: unary(methodListEntries, BackOfficeServer.ListEntries)},
		{MethodName: "SupplierSales", Handler: unary(methodSupplierSales, BackOfficeServer.SupplierSales)},
		{MethodName: "ConfirmOrder", Handler: unary(methodConfirmOrder, BackOfficeServer.ConfirmOrder)},
		{MethodName: "RejectOrder", Handler: unary(methodRejectOrder, BackOfficeServer.RejectOrder)},
		{MethodName: "ShipOrder", Handler: unary(methodShipOrder, BackOfficeServer.ShipOrder)},
		{MethodName: "GetOrder", Handler: unary(methodGetOrder, BackOfficeServer.GetOrder)},
		{MethodName: "ListOrdersByState", Handler: unary(methodListOrdersByState, BackOfficeServer.ListOrdersByState)},
		{MethodName: "CreateCategory", Handler: unary(methodCreateCategory, BackOfficeServer.CreateCategory)},
		{MethodName: "UpdateCategory", Handler: unary(methodUpdateCategory, BackOfficeServer.UpdateCategory)},
		{MethodName: "DeleteCategory", Handler: unary(methodDeleteCategory, BackOfficeServer.DeleteCategory)},
		{MethodName: "ListCategories", Handler: unary(methodListCategories, BackOfficeServer.ListCategories)},
		{MethodName: "CreateDeliveryMode", Handler: unary(methodCreateDeliveryMode, BackOfficeServer.CreateDeliveryMode)},
		{MethodName: "UpdateDeliveryMode", Handler: unary(methodUpdateDeliveryMode, BackOfficeServer.UpdateDeliveryMode)},
		{MethodName: "DeleteDeliveryMode", Handler: unary(methodDeleteDeliveryMode, BackOfficeServer.DeleteDeliveryMode)},
		{MethodName: "ListDeliveryModes", Handler: unary(methodListDeliveryModes, BackOfficeServer.ListDeliveryModes)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/backoffice.proto",
}

// RegisterBackOfficeServer регистрирует реализацию на сервере.
func RegisterBackOfficeServer(s grpc.ServiceRegistrar, srv BackOfficeServer) {
	s.RegisterService(&BackOfficeServiceDesc, srv)
}

func unary[Req, Resp any](
	fullMethod string,
	call func(BackOfficeServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BackOfficeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BackOfficeServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BackOfficeClient — клиент storefront.v1.BackOffice.
type BackOfficeClient struct {
	cc grpc.ClientConnInterface
}

// NewBackOfficeClient создаёт клиента поверх соединения.
func NewBackOfficeClient(cc grpc.ClientConnInterface) *BackOfficeClient {
	return &BackOfficeClient{cc: cc}
}

func (c *BackOfficeClient) RegisterSupplier(ctx context.Context, in *RegisterSupplierRequest, opts ...grpc.CallOption) (*Supplier, error) {
	return invoke[Supplier](ctx, c.cc, methodRegisterSupplier, in, opts)
}

func (c *BackOfficeClient) GetSupplier(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Supplier, error) {
	return invoke[Supplier](ctx, c.cc, methodGetSupplier, in, opts)
}

func (c *BackOfficeClient) ListSuppliers(ctx context.Context, in *ListSuppliersRequest, opts ...grpc.CallOption) (*SupplierList, error) {
	return invoke[SupplierList](ctx, c.cc, methodListSuppliers, in, opts)
}

func (c *BackOfficeClient) SetSupplierState(ctx context.Context, in *SetSupplierStateRequest, opts ...grpc.CallOption) (*Supplier, error) {
	return invoke[Supplier](ctx, c.cc, methodSetSupplierState, in, opts)
}

func (c *BackOfficeClient) SubmitEntry(ctx context.Context, in *SubmitEntryRequest, opts ...grpc.CallOption) (*Entry, error) {
	return invoke[Entry](ctx, c.cc, methodSubmitEntry, in, opts)
}

func (c *BackOfficeClient) EditEntry(ctx context.Context, in *EditEntryRequest, opts ...grpc.CallOption) (*Entry, error) {
	return invoke[Entry](ctx, c.cc, methodEditEntry, in, opts)
}

func (c *BackOfficeClient) ActivateEntry(ctx context.Context, in *ActivateEntryRequest, opts ...grpc.CallOption) (*Entry, error) {
	return invoke[Entry](ctx, c.cc, methodActivateEntry, in, opts)
}

func (c *BackOfficeClient) SuspendEntry(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Entry, error) {
	return invoke[Entry](ctx, c.cc, methodSuspendEntry, in, opts)
}

func (c *BackOfficeClient) ReactivateEntry(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Entry, error) {
	return invoke[Entry](ctx, c.cc, methodReactivateEntry, in, opts)
}

func (c *BackOfficeClient) DeleteEntry(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, methodDeleteEntry, in, opts)
}

func (c *BackOfficeClient) GetEntry(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Entry, error) {
	return invoke[Entry](ctx, c.cc, methodGetEntry, in, opts)
}

func (c *BackOfficeClient) ListEntries(ctx context.Context, in *ListEntriesRequest, opts ...grpc.CallOption) (*EntryList, error) {
	return invoke[EntryList](ctx, c.cc, methodListEntries, in, opts)
}

func (c *BackOfficeClient) SupplierSales(ctx context.Context, in *SupplierSalesRequest, opts ...grpc.CallOption) (*SalesReport, error) {
	return invoke[SalesReport](ctx, c.cc, methodSupplierSales, in, opts)
}

func (c *BackOfficeClient) ConfirmOrder(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[Order](ctx, c.cc, methodConfirmOrder, in, opts)
}

func (c *BackOfficeClient) RejectOrder(ctx context.Context, in *RejectOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[Order](ctx, c.cc, methodRejectOrder, in, opts)
}

func (c *BackOfficeClient) ShipOrder(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[Order](ctx, c.cc, methodShipOrder, in, opts)
}

func (c *BackOfficeClient) GetOrder(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[Order](ctx, c.cc, methodGetOrder, in, opts)
}

func (c *BackOfficeClient) ListOrdersByState(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*OrderList, error) {
	return invoke[OrderList](ctx, c.cc, methodListOrdersByState, in, opts)
}

func (c *BackOfficeClient) CreateCategory(ctx context.Context, in *CategoryDraft, opts ...grpc.CallOption) (*Category, error) {
	return invoke[Category](ctx, c.cc, methodCreateCategory, in, opts)
}

func (c *BackOfficeClient) UpdateCategory(ctx context.Context, in *UpdateCategoryRequest, opts ...grpc.CallOption) (*Category, error) {
	return invoke[Category](ctx, c.cc, methodUpdateCategory, in, opts)
}

func (c *BackOfficeClient) DeleteCategory(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, methodDeleteCategory, in, opts)
}

func (c *BackOfficeClient) ListCategories(ctx context.Context, in *ListCategoriesRequest, opts ...grpc.CallOption) (*CategoryList, error) {
	return invoke[CategoryList](ctx, c.cc, methodListCategories, in, opts)
}

func (c *BackOfficeClient) CreateDeliveryMode(ctx context.Context, in *DeliveryModeDraft, opts ...grpc.CallOption) (*DeliveryMode, error) {
	return invoke[DeliveryMode](ctx, c.cc, methodCreateDeliveryMode, in, opts)
}

func (c *BackOfficeClient) UpdateDeliveryMode(ctx context.Context, in *UpdateDeliveryModeRequest, opts ...grpc.CallOption) (*DeliveryMode, error) {
	return invoke[DeliveryMode](ctx, c.cc, methodUpdateDeliveryMode, in, opts)
}

func (c *BackOfficeClient) DeleteDeliveryMode(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, methodDeleteDeliveryMode, in, opts)
}

func (c *BackOfficeClient) ListDeliveryModes(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*DeliveryModeList, error) {
	return invoke[DeliveryModeList](ctx, c.cc, methodListDeliveryModes, in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}
