package grpc

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/usecase"
)

// AdminKeyMetadata 管理端金鑰放在 metadata 的 key
const AdminKeyMetadata = "x-admin-key"

// AdminWindow 異動後回傳最近幾筆交易
const AdminWindow = 5

// BalanceService 管理端用到的帳戶操作
type BalanceService interface {
	Deposit(ctx context.Context, identity string, amount decimal.Decimal) (usecase.MutationResult, error)
	Withdraw(ctx context.Context, identity string, amount decimal.Decimal, status domain.EntryStatus, reason string) (usecase.MutationResult, error)
	SetWithdrawalLimit(ctx context.Context, identity string, limit decimal.Decimal) (usecase.MutationResult, error)
	RemoveEntry(ctx context.Context, identity string, index int) (usecase.MutationResult, error)
	GetAccountView(ctx context.Context, identity string) (domain.AccountView, error)
}

type GrpcServer struct {
	balance BalanceService
}

func NewGrpcServer(balance BalanceService) *GrpcServer {
	return &GrpcServer{
		balance: balance,
	}
}

// NewServer 建立 grpc.Server 並註冊 BalanceAdmin 與 health service
//
// 參數:
//
//	balance: 帳戶操作
//	logger: zap logger
//	adminKey: 管理端金鑰，空字串代表不檢查
//	opts: 額外的 grpc.ServerOption
func NewServer(balance BalanceService, logger *zap.Logger, adminKey string, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		AdminKeyInterceptor(adminKey),
	))
	s := grpc.NewServer(opts...)
	RegisterBalanceAdminServer(s, NewGrpcServer(balance))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

func (s *GrpcServer) UpdateBalance(ctx context.Context, req *UpdateBalanceRequest) (*AccountReply, error) {
	var (
		res usecase.MutationResult
		err error
	)
	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case TypeDeposit:
		res, err = s.balance.Deposit(ctx, req.Email, req.Amount)
	case TypeWithdraw, "withdrawal":
		entryStatus, perr := domain.ParseEntryStatus(req.Status)
		if perr != nil {
			return nil, toStatus(perr)
		}
		res, err = s.balance.Withdraw(ctx, req.Email, req.Amount, entryStatus, req.Reason)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "invalid transaction type %q", req.Type)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountReply{
		Message: "Balance updated successfully",
		User:    res.View.Window(AdminWindow),
		Entry:   res.Entry,
	}, nil
}

func (s *GrpcServer) SetWithdrawalLimit(ctx context.Context, req *SetWithdrawalLimitRequest) (*AccountReply, error) {
	res, err := s.balance.SetWithdrawalLimit(ctx, req.Email, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	msg := "Withdrawal limit removed"
	if res.View.WithdrawalLimit != nil {
		msg = fmt.Sprintf("Withdrawal limit set to ₦%s", res.View.WithdrawalLimit.String())
	}
	return &AccountReply{Message: msg, User: res.View.Window(AdminWindow)}, nil
}

func (s *GrpcServer) RemoveEntry(ctx context.Context, req *RemoveEntryRequest) (*AccountReply, error) {
	res, err := s.balance.RemoveEntry(ctx, req.Email, req.Index)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountReply{
		Message: fmt.Sprintf("%s removed successfully", res.Entry.Kind),
		User:    res.View.Window(AdminWindow),
		Entry:   res.Entry,
	}, nil
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *GetAccountRequest) (*AccountReply, error) {
	view, err := s.balance.GetAccountView(ctx, req.Email)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountReply{Message: "User fetched successfully", User: view}, nil
}

// toStatus domain 錯誤 -> gRPC status
func toStatus(err error) error {
	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindValidation:
		code = codes.InvalidArgument
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindAlreadyExists:
		code = codes.AlreadyExists
	case domain.KindUnauthorized:
		code = codes.Unauthenticated
	case domain.KindPersistenceConflict:
		code = codes.Aborted
	default:
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(code, err.Error())
}

// LoggingInterceptor 記錄每個 RPC；非預期錯誤 (Internal) 以 Error 等級記錄
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			logger.Error("gRPC request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("gRPC request", fields...)
		}
		return resp, err
	}
}

// AdminKeyInterceptor 檢查 metadata 中的管理端金鑰，key 為空時不檢查
// 只套用在 BalanceAdmin 服務，health check 不受影響
func AdminKeyInterceptor(key string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if key == "" || !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(AdminKeyMetadata)
		if len(values) == 0 || subtle.ConstantTimeCompare([]byte(values[0]), []byte(key)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid admin key")
		}
		return handler(ctx, req)
	}
}

var _ BalanceAdminServer = (*GrpcServer)(nil)
