package grpc

import (
	"context"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

// ServiceName 完整服務名稱
const ServiceName = "balance.v1.BalanceAdmin"

const (
	methodUpdateBalance      = "/" + ServiceName + "/UpdateBalance"
	methodSetWithdrawalLimit = "/" + ServiceName + "/SetWithdrawalLimit"
	methodRemoveEntry        = "/" + ServiceName + "/RemoveEntry"
	methodGetAccount         = "/" + ServiceName + "/GetAccount"
)

// 交易類型
const (
	TypeDeposit  = "deposit"
	TypeWithdraw = "withdraw"
)

type UpdateBalanceRequest struct {
	Email  string          `json:"email"`
	Amount decimal.Decimal `json:"amount"`
	// Type: deposit | withdraw
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type SetWithdrawalLimitRequest struct {
	Email string          `json:"email"`
	Limit decimal.Decimal `json:"limit"`
}

type RemoveEntryRequest struct {
	Email string `json:"email"`
	Index int    `json:"index"`
}

type GetAccountRequest struct {
	Email string `json:"email"`
}

// AccountReply 所有方法共用的回應
type AccountReply struct {
	Message string             `json:"message"`
	User    domain.AccountView `json:"user"`
	// Entry 新增或被移除的交易 (GetAccount / SetWithdrawalLimit 為 nil)
	Entry *domain.LedgerEntry `json:"entry,omitempty"`
}

// BalanceAdminServer 管理端 RPC 介面
type BalanceAdminServer interface {
	UpdateBalance(context.Context, *UpdateBalanceRequest) (*AccountReply, error)
	SetWithdrawalLimit(context.Context, *SetWithdrawalLimitRequest) (*AccountReply, error)
	RemoveEntry(context.Context, *RemoveEntryRequest) (*AccountReply, error)
	GetAccount(context.Context, *GetAccountRequest) (*AccountReply, error)
}

// RegisterBalanceAdminServer 註冊服務
func RegisterBalanceAdminServer(s grpc.ServiceRegistrar, srv BalanceAdminServer) {
	s.RegisterService(&BalanceAdminServiceDesc, srv)
}

// BalanceAdminServiceDesc 服務描述 (訊息走 JSON codec，不需要 .proto)
var BalanceAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BalanceAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UpdateBalance", Handler: updateBalanceHandler},
		{MethodName: "SetWithdrawalLimit", Handler: setWithdrawalLimitHandler},
		{MethodName: "RemoveEntry", Handler: removeEntryHandler},
		{MethodName: "GetAccount", Handler: getAccountHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "balance/v1/admin",
}

func updateBalanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateBalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BalanceAdminServer).UpdateBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodUpdateBalance}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BalanceAdminServer).UpdateBalance(ctx, req.(*UpdateBalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func setWithdrawalLimitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SetWithdrawalLimitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BalanceAdminServer).SetWithdrawalLimit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSetWithdrawalLimit}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BalanceAdminServer).SetWithdrawalLimit(ctx, req.(*SetWithdrawalLimitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func removeEntryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RemoveEntryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BalanceAdminServer).RemoveEntry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRemoveEntry}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BalanceAdminServer).RemoveEntry(ctx, req.(*RemoveEntryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getAccountHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BalanceAdminServer).GetAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetAccount}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BalanceAdminServer).GetAccount(ctx, req.(*GetAccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// BalanceAdminClient 管理端 RPC client
type BalanceAdminClient struct {
	cc grpc.ClientConnInterface
}

func NewBalanceAdminClient(cc grpc.ClientConnInterface) *BalanceAdminClient {
	return &BalanceAdminClient{cc: cc}
}

func (c *BalanceAdminClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*AccountReply, error) {
	out := new(AccountReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BalanceAdminClient) UpdateBalance(ctx context.Context, in *UpdateBalanceRequest, opts ...grpc.CallOption) (*AccountReply, error) {
	return c.invoke(ctx, methodUpdateBalance, in, opts)
}

func (c *BalanceAdminClient) SetWithdrawalLimit(ctx context.Context, in *SetWithdrawalLimitRequest, opts ...grpc.CallOption) (*AccountReply, error) {
	return c.invoke(ctx, methodSetWithdrawalLimit, in, opts)
}

func (c *BalanceAdminClient) RemoveEntry(ctx context.Context, in *RemoveEntryRequest, opts ...grpc.CallOption) (*AccountReply, error) {
	return c.invoke(ctx, methodRemoveEntry, in, opts)
}

func (c *BalanceAdminClient) GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*AccountReply, error) {
	return c.invoke(ctx, methodGetAccount, in, opts)
}
