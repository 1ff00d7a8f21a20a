package commonconst

// levelDB 所有账户的key （key: AccountsKey - val: 地址到账户信息的映射）
const AccountsKey = "levelDBAccountsKey"

// levelDB 已部署合约的key （key: ContractsKey - val: 合约名到合约地址的映射）
const ContractsKey = "levelDBContractsKey"

// levelDB 合约状态的key前缀（key: ContractStatePrefix+合约名 - val: 合约状态）
const ContractStatePrefix = "contractState_"

// levelDB 交易回执的key前缀（key: ReceiptPrefix+交易hash - val: 回执）
const ReceiptPrefix = "receipt_"

// levelDB 当前执行序号
const HeightKey = "levelDBHeightKey"
